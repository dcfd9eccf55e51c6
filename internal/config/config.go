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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Sync     SyncConfig     `yaml:"sync" mapstructure:"sync"`
	Scorer   ScorerConfig   `yaml:"scorer" mapstructure:"scorer"`
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Alerts   AlertsConfig   `yaml:"alerts" mapstructure:"alerts"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite | postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RegistryConfig configures the public registry HTTP client.
type RegistryConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// SyncConfig configures bulk refresh and discovery jobs.
type SyncConfig struct {
	Concurrency             int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts             int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs        int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs            int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RequestDelayMs          int `yaml:"request_delay_ms" mapstructure:"request_delay_ms"`
	StaleAfterDays          int `yaml:"stale_after_days" mapstructure:"stale_after_days"`
	DefaultLimit            int `yaml:"default_limit" mapstructure:"default_limit"`
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetSecs        int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// ScorerConfig holds quality checklist weights and trust base values.
type ScorerConfig struct {
	QualityWeights map[string]float64 `yaml:"quality_weights" mapstructure:"quality_weights"`
	TrustAdmin     int                `yaml:"trust_admin_verified" mapstructure:"trust_admin_verified"`
	TrustRegistry  int                `yaml:"trust_external_registry" mapstructure:"trust_external_registry"`
	TrustManual    int                `yaml:"trust_manual" mapstructure:"trust_manual"`
	VerifiedBonus  int                `yaml:"verified_bonus" mapstructure:"verified_bonus"`
}

// HistoryConfig configures safety-rating stability math.
type HistoryConfig struct {
	LookbackMonths int `yaml:"lookback_months" mapstructure:"lookback_months"`
	ChurnThreshold int `yaml:"churn_threshold" mapstructure:"churn_threshold"`
}

// ServerConfig configures the HTTP job-control API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// AlertsConfig configures job-health and insurance alert delivery.
type AlertsConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinProcessed         int     `yaml:"min_processed" mapstructure:"min_processed"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CARRIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "carrier-sync.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("registry.base_url", "https://safer.fmcsa.dot.gov")
	v.SetDefault("registry.user_agent", "carrier-sync/1.0")
	v.SetDefault("registry.timeout_secs", 20)
	v.SetDefault("registry.requests_per_sec", 2.0)
	v.SetDefault("registry.burst", 2)
	v.SetDefault("sync.concurrency", 4)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.initial_backoff_ms", 500)
	v.SetDefault("sync.max_backoff_ms", 30000)
	v.SetDefault("sync.request_delay_ms", 250)
	v.SetDefault("sync.stale_after_days", 30)
	v.SetDefault("sync.default_limit", 100)
	v.SetDefault("sync.circuit_failure_threshold", 5)
	v.SetDefault("sync.circuit_reset_secs", 30)
	v.SetDefault("scorer.trust_admin_verified", 90)
	v.SetDefault("scorer.trust_external_registry", 70)
	v.SetDefault("scorer.trust_manual", 40)
	v.SetDefault("scorer.verified_bonus", 10)
	v.SetDefault("history.lookback_months", 24)
	v.SetDefault("history.churn_threshold", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("alerts.failure_rate_threshold", 0.25)
	v.SetDefault("alerts.min_processed", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings required by the given command mode
// ("lookup", "sync", "serve", "migrate") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	switch mode {
	case "lookup", "sync", "serve", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	var errs []string

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}

	if mode != "migrate" {
		if c.Registry.BaseURL == "" {
			errs = append(errs, "registry.base_url is required")
		}
		if c.Registry.TimeoutSecs <= 0 {
			errs = append(errs, "registry.timeout_secs must be positive")
		}
		if c.Registry.RequestsPerSec < 0 {
			errs = append(errs, "registry.requests_per_sec must not be negative")
		}
	}

	if mode == "sync" || mode == "serve" {
		if c.Sync.Concurrency < 1 || c.Sync.Concurrency > 32 {
			errs = append(errs, fmt.Sprintf("sync.concurrency must be between 1 and 32, got %d", c.Sync.Concurrency))
		}
		if c.Sync.MaxAttempts < 1 {
			errs = append(errs, "sync.max_attempts must be at least 1")
		}
		if c.Sync.RequestDelayMs < 0 {
			errs = append(errs, "sync.request_delay_ms must not be negative")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}

	for name, w := range c.Scorer.QualityWeights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("scorer.quality_weights.%s must not be negative", name))
		}
	}
	if c.Alerts.FailureRateThreshold < 0 || c.Alerts.FailureRateThreshold > 1 {
		errs = append(errs, "alerts.failure_rate_threshold must be between 0 and 1")
	}
	if c.History.LookbackMonths < 0 {
		errs = append(errs, "history.lookback_months must not be negative")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
