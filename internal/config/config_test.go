package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 4, cfg.Batch.MaxConcurrency)
	assert.InDelta(t, 1.0, cfg.Confidence.SignalWeight, 0.001)
	assert.InDelta(t, 3.0, cfg.Confidence.PatternWeight, 0.001)
	assert.Equal(t, 10, cfg.Confidence.UsageSaturation)
	assert.InDelta(t, 0.5, cfg.Confidence.DisagreementDamping, 0.001)
	assert.Equal(t, 5, cfg.Rules.MinEvidence)
	assert.InDelta(t, 0.3, cfg.Rules.MaxRejectionRate, 0.001)
	assert.Equal(t, 3, cfg.Rules.MinSample)
	assert.Equal(t, 336, cfg.Suggestions.TTLHours)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 25, cfg.Retry.InitialBackoffMs)
	assert.InDelta(t, 50.0, cfg.Ingest.RatePerSec, 0.001)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.InDelta(t, 0.2, cfg.Monitoring.ApplyFailureRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: studio.db
log:
  level: debug
  format: console
server:
  port: 9090
  cors_origins: ["https://studio.example.com"]
batch:
  max_concurrency: 10
confidence:
  pattern_weight: 5
handlers:
  targets_file: targets.yaml
  allowed_statuses: [active, on_hold, closed]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "studio.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://studio.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10, cfg.Batch.MaxConcurrency)
	assert.InDelta(t, 5.0, cfg.Confidence.PatternWeight, 0.001)
	assert.Equal(t, "targets.yaml", cfg.Handlers.TargetsFile)
	assert.Equal(t, []string{"active", "on_hold", "closed"}, cfg.Handlers.AllowedStatuses)
	// Defaults still apply for unset values
	assert.InDelta(t, 1.0, cfg.Confidence.SignalWeight, 0.001)
	assert.Equal(t, 5, cfg.Rules.MinEvidence)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("STUDIO_STORE_DRIVER", "postgres")
	t.Setenv("STUDIO_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("STUDIO_SERVER_PORT", "3000")
	t.Setenv("STUDIO_STORE_DATABASE_URL", "postgres://localhost/studio")
	t.Setenv("STUDIO_RULES_MIN_EVIDENCE", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/studio", cfg.Store.DatabaseURL)
	assert.Equal(t, 8, cfg.Rules.MinEvidence)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Confidence.SignalWeight = 1
	cfg.Confidence.PatternWeight = 3
	cfg.Confidence.DisagreementDamping = 0.5
	cfg.Rules.MaxRejectionRate = 0.3
	cfg.Batch.MaxConcurrency = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "ingest", "migrate", "engine"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_MissingStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be in 1-65535")

	// Port is irrelevant outside serve.
	assert.NoError(t, cfg.Validate("engine"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateEngineSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative weight", func(c *Config) { c.Confidence.PatternWeight = -1 }, "confidence.pattern_weight must be >= 0"},
		{"damping above one", func(c *Config) { c.Confidence.DisagreementDamping = 1.5 }, "disagreement_damping"},
		{"zero rejection rate", func(c *Config) { c.Rules.MaxRejectionRate = 0 }, "rules.max_rejection_rate"},
		{"no concurrency", func(c *Config) { c.Batch.MaxConcurrency = 0 }, "batch.max_concurrency must be >= 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("engine")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			// migrate only needs the store.
			assert.NoError(t, cfg.Validate("migrate"))
		})
	}
}
