package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Confidence  ConfidenceConfig  `yaml:"confidence" mapstructure:"confidence"`
	Rules       RulesConfig       `yaml:"rules" mapstructure:"rules"`
	Suggestions SuggestionsConfig `yaml:"suggestions" mapstructure:"suggestions"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Ingest      IngestConfig      `yaml:"ingest" mapstructure:"ingest"`
	Handlers    HandlersConfig    `yaml:"handlers" mapstructure:"handlers"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ConfidenceConfig tunes how pattern confidence is blended into a new
// suggestion's score.
type ConfidenceConfig struct {
	SignalWeight        float64 `yaml:"signal_weight" mapstructure:"signal_weight"`
	PatternWeight       float64 `yaml:"pattern_weight" mapstructure:"pattern_weight"`
	UsageSaturation     int     `yaml:"usage_saturation" mapstructure:"usage_saturation"`
	DisagreementDamping float64 `yaml:"disagreement_damping" mapstructure:"disagreement_damping"`
	PriorCorrect        float64 `yaml:"prior_correct" mapstructure:"prior_correct"`
	PriorRejected       float64 `yaml:"prior_rejected" mapstructure:"prior_rejected"`
}

// RulesConfig configures pattern promotion and retirement.
type RulesConfig struct {
	MinEvidence      int     `yaml:"min_evidence" mapstructure:"min_evidence"`
	MaxRejectionRate float64 `yaml:"max_rejection_rate" mapstructure:"max_rejection_rate"`
	MinSample        int     `yaml:"min_sample" mapstructure:"min_sample"`
}

// SuggestionsConfig configures the suggestion queue.
type SuggestionsConfig struct {
	TTLHours int `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// BatchConfig configures batch operations.
type BatchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// RetryConfig configures retries of engine transactions.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// IngestConfig configures signal file ingestion.
type IngestConfig struct {
	RatePerSec float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
}

// HandlersConfig configures the business tables handlers write to.
type HandlersConfig struct {
	TargetsFile     string   `yaml:"targets_file" mapstructure:"targets_file"`
	AllowedStatuses []string `yaml:"allowed_statuses" mapstructure:"allowed_statuses"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures the background health checker.
type MonitoringConfig struct {
	WebhookURL                string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs         int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	ApplyFailureRateThreshold float64 `yaml:"apply_failure_rate_threshold" mapstructure:"apply_failure_rate_threshold"`
	PendingBacklogThreshold   int     `yaml:"pending_backlog_threshold" mapstructure:"pending_backlog_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("batch.max_concurrency", 4)
	v.SetDefault("confidence.signal_weight", 1.0)
	v.SetDefault("confidence.pattern_weight", 3.0)
	v.SetDefault("confidence.usage_saturation", 10)
	v.SetDefault("confidence.disagreement_damping", 0.5)
	v.SetDefault("confidence.prior_correct", 1.0)
	v.SetDefault("confidence.prior_rejected", 1.0)
	v.SetDefault("rules.min_evidence", 5)
	v.SetDefault("rules.max_rejection_rate", 0.3)
	v.SetDefault("rules.min_sample", 3)
	v.SetDefault("suggestions.ttl_hours", 336)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 25)
	v.SetDefault("retry.max_backoff_ms", 1000)
	v.SetDefault("ingest.rate_per_sec", 50.0)
	v.SetDefault("ingest.burst", 10)
	v.SetDefault("handlers.targets_file", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.apply_failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.pending_backlog_threshold", 500)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "serve",
// "ingest", "migrate" or "engine"; every mode needs a usable store.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "serve", "ingest", "migrate", "engine":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var errs []string

	switch strings.ToLower(c.Store.Driver) {
	case "postgres", "postgresql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode != "migrate" {
		weights := map[string]float64{
			"confidence.signal_weight":  c.Confidence.SignalWeight,
			"confidence.pattern_weight": c.Confidence.PatternWeight,
			"confidence.prior_correct":  c.Confidence.PriorCorrect,
			"confidence.prior_rejected": c.Confidence.PriorRejected,
		}
		for name, w := range weights {
			if w < 0 {
				errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
			}
		}
		if d := c.Confidence.DisagreementDamping; d < 0 || d > 1 {
			errs = append(errs, "confidence.disagreement_damping must be in [0,1]")
		}
		if r := c.Rules.MaxRejectionRate; r <= 0 || r > 1 {
			errs = append(errs, "rules.max_rejection_rate must be in (0,1]")
		}
		if c.Batch.MaxConcurrency < 1 {
			errs = append(errs, "batch.max_concurrency must be >= 1")
		}
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be in 1-65535, got %d", c.Server.Port))
		}
	case "ingest":
		if c.Ingest.RatePerSec < 0 {
			errs = append(errs, "ingest.rate_per_sec must be >= 0")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
