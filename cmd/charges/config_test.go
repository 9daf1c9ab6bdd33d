package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "./data/charges.db", cfg.Database.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, -720, cfg.Rules.StartDateMinDays)
	assert.Equal(t, 1095, cfg.Rules.StartDateMaxDays)
	assert.Equal(t, "Europe/Copenhagen", cfg.Rules.TimeZone)
	assert.Equal(t, "metering_point_administrator", cfg.Receipts.SenderRole)

	assert.Equal(t, []string{"log"}, cfg.Notifier.Kinds())
	assert.Equal(t, 30*time.Second, cfg.Notifier.Timeout)

	assert.Equal(t, 2*time.Second, cfg.Worker.Interval)
	assert.Equal(t, 50, cfg.Worker.BatchSize)
	assert.Equal(t, 5, cfg.Worker.MaxConcurrent)
	assert.Equal(t, 3, cfg.Worker.ConflictRetries)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  shutdown_timeout: 15s

database:
  dsn: "/tmp/test.db"

log:
  level: "debug"
  format: "text"

rules:
  start_date_min_days: -30
  start_date_max_days: 60
  time_zone: "UTC"

notifier:
  kind: "log, webhook"
  webhook_url: "http://receipts.local/hook"

worker:
  interval: 500ms
  conflict_retries: 1
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/tmp/test.db", cfg.Database.DSN)
	assert.Equal(t, "debug", cfg.Log.Level)

	rules := cfg.Rules.Configuration()
	assert.Equal(t, -30, rules.StartDateInterval.MinDays)
	assert.Equal(t, 60, rules.StartDateInterval.MaxDays)
	assert.Equal(t, "UTC", cfg.Rules.TimeZone)

	assert.Equal(t, []string{"log", "webhook"}, cfg.Notifier.Kinds())
	assert.Equal(t, "http://receipts.local/hook", cfg.Notifier.WebhookURL)

	assert.Equal(t, 500*time.Millisecond, cfg.Worker.Interval)
	assert.Equal(t, 1, cfg.Worker.ConflictRetries)
	assert.Equal(t, 50, cfg.Worker.BatchSize)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("CHARGES_SERVER_PORT", "3000")
	t.Setenv("CHARGES_DATABASE_DSN", "/custom/path.db")
	t.Setenv("CHARGES_LOG_LEVEL", "warn")
	t.Setenv("CHARGES_RULES_START_DATE_MAX_DAYS", "365")
	t.Setenv("CHARGES_NOTIFIER_KIND", "redis")
	t.Setenv("CHARGES_NOTIFIER_REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 365, cfg.Rules.StartDateMaxDays)
	assert.Equal(t, []string{"redis"}, cfg.Notifier.Kinds())
	assert.Equal(t, "localhost:6379", cfg.Notifier.RedisAddr)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

func TestNotifierConfig_Kinds(t *testing.T) {
	assert.Nil(t, NotifierConfig{}.Kinds())
	assert.Equal(t, []string{"log", "redis"}, NotifierConfig{Kind: " LOG ,,redis"}.Kinds())
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger(t *testing.T) {
	for _, tt := range []struct{ level, format string }{
		{"info", "json"},
		{"debug", "text"},
		{"warn", "json"},
		{"error", "json"},
		{"invalid", "json"},
	} {
		t.Run(tt.level+"_"+tt.format, func(t *testing.T) {
			logger := SetupLogger(&Config{Log: LogConfig{Level: tt.level, Format: tt.format}})
			assert.NotNil(t, logger)
		})
	}
}

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"CHARGES_SERVER_HOST",
		"CHARGES_SERVER_PORT",
		"CHARGES_DATABASE_DSN",
		"CHARGES_LOG_LEVEL",
		"CHARGES_LOG_FORMAT",
		"CHARGES_RULES_START_DATE_MAX_DAYS",
		"CHARGES_NOTIFIER_KIND",
		"CHARGES_NOTIFIER_REDIS_ADDR",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
