// Package rulesconfig supplies the business rule parameters, either fixed at
// startup or read from a YAML file that operators may edit while the service
// runs.
package rulesconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/charges/internal/core/validation"
)

var (
	// ErrInvalidConfiguration is returned for parameters the rules cannot use.
	ErrInvalidConfiguration = errors.New("invalid rules configuration")
)

// Provider returns the current rules configuration.
type Provider interface {
	GetConfiguration(ctx context.Context) (validation.RulesConfiguration, error)
}

// Validate checks that a configuration is usable.
func Validate(cfg validation.RulesConfiguration) error {
	if cfg.StartDateInterval.MinDays > cfg.StartDateInterval.MaxDays {
		return fmt.Errorf("%w: start date interval [%d, %d] is empty", ErrInvalidConfiguration,
			cfg.StartDateInterval.MinDays, cfg.StartDateInterval.MaxDays)
	}
	return nil
}

// =============================================================================
// Static Provider
// =============================================================================

// StaticProvider always returns the same configuration.
type StaticProvider struct {
	cfg validation.RulesConfiguration
}

// NewStaticProvider creates a provider for cfg.
func NewStaticProvider(cfg validation.RulesConfiguration) (*StaticProvider, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &StaticProvider{cfg: cfg}, nil
}

// MustStaticProvider is like NewStaticProvider but panics on an invalid
// configuration.
func MustStaticProvider(cfg validation.RulesConfiguration) *StaticProvider {
	p, err := NewStaticProvider(cfg)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *StaticProvider) GetConfiguration(ctx context.Context) (validation.RulesConfiguration, error) {
	return p.cfg, nil
}

// =============================================================================
// File Provider
// =============================================================================

// FileProvider reads the configuration from a YAML file and reloads it when
// the file's modification time changes. Keys missing from the file keep the
// fallback values.
//
//	start_date_interval:
//	  min_days: -720
//	  max_days: 1095
type FileProvider struct {
	path     string
	fallback validation.RulesConfiguration

	mu      sync.Mutex
	modTime time.Time
	current validation.RulesConfiguration
}

// NewFileProvider creates a provider and loads path once so that a broken
// file is reported at startup.
func NewFileProvider(path string, fallback validation.RulesConfiguration) (*FileProvider, error) {
	p := &FileProvider{path: path, fallback: fallback}
	if _, err := p.GetConfiguration(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FileProvider) GetConfiguration(ctx context.Context) (validation.RulesConfiguration, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return validation.RulesConfiguration{}, fmt.Errorf("stat rules file: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.modTime.IsZero() && info.ModTime().Equal(p.modTime) {
		return p.current, nil
	}

	cfg, err := load(p.path, p.fallback)
	if err != nil {
		return validation.RulesConfiguration{}, err
	}

	p.current = cfg
	p.modTime = info.ModTime()
	return cfg, nil
}

func load(path string, fallback validation.RulesConfiguration) (validation.RulesConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return validation.RulesConfiguration{}, fmt.Errorf("read rules file: %w", err)
	}

	cfg := fallback
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return validation.RulesConfiguration{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	if err := Validate(cfg); err != nil {
		return validation.RulesConfiguration{}, err
	}
	return cfg, nil
}
