package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/charges/internal/core/localtime"
	"github.com/artpar/charges/internal/core/validation"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Receipts ReceiptsConfig `mapstructure:"receipts"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig controls how the gateway identity is checked.
type AuthConfig struct {
	// RequireParticipant rejects command requests without the
	// X-Market-Participant-Id header.
	RequireParticipant bool `mapstructure:"require_participant"`

	// SharedSecret is an optional secret to validate X-Gateway-Secret.
	SharedSecret string `mapstructure:"shared_secret"`
}

// RulesConfig holds validation rule settings.
type RulesConfig struct {
	StartDateMinDays int    `mapstructure:"start_date_min_days"`
	StartDateMaxDays int    `mapstructure:"start_date_max_days"`
	TimeZone         string `mapstructure:"time_zone"`

	// File is an optional YAML file overriding the interval at runtime.
	File string `mapstructure:"file"`
}

// Configuration returns the rule configuration the settings describe.
func (c RulesConfig) Configuration() validation.RulesConfiguration {
	return validation.RulesConfiguration{
		StartDateInterval: validation.StartDateInterval{
			MinDays: c.StartDateMinDays,
			MaxDays: c.StartDateMaxDays,
		},
	}
}

// ReceiptsConfig identifies this system on outgoing receipts.
type ReceiptsConfig struct {
	SenderID   string `mapstructure:"sender_id"`
	SenderRole string `mapstructure:"sender_role"`
}

// NotifierConfig selects the receipt transports.
type NotifierConfig struct {
	// Kind is a comma separated list of log, webhook and redis.
	Kind          string        `mapstructure:"kind"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	WebhookAPIKey string        `mapstructure:"webhook_api_key"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisStream   string        `mapstructure:"redis_stream"`
	RedisMaxLen   int64         `mapstructure:"redis_max_len"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// Kinds returns the configured transports.
func (c NotifierConfig) Kinds() []string {
	var kinds []string
	for _, k := range strings.Split(c.Kind, ",") {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// WorkerConfig holds inbox worker configuration.
type WorkerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	ConflictRetries int           `mapstructure:"conflict_retries"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/charges.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.require_participant", false)
	v.SetDefault("auth.shared_secret", "")

	defaults := validation.DefaultRulesConfiguration()
	v.SetDefault("rules.start_date_min_days", defaults.StartDateInterval.MinDays)
	v.SetDefault("rules.start_date_max_days", defaults.StartDateInterval.MaxDays)
	v.SetDefault("rules.time_zone", localtime.DefaultZoneName)
	v.SetDefault("rules.file", "")

	v.SetDefault("receipts.sender_id", "5790001330583")
	v.SetDefault("receipts.sender_role", "metering_point_administrator")

	v.SetDefault("notifier.kind", "log")
	v.SetDefault("notifier.webhook_url", "")
	v.SetDefault("notifier.webhook_api_key", "")
	v.SetDefault("notifier.redis_addr", "")
	v.SetDefault("notifier.redis_stream", "charges:receipts")
	v.SetDefault("notifier.redis_max_len", 0)
	v.SetDefault("notifier.timeout", "30s")

	v.SetDefault("worker.interval", "2s")
	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.max_concurrent", 5)
	v.SetDefault("worker.conflict_retries", 3)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	v.SetEnvPrefix("CHARGES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
