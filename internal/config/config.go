package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Portal     PortalConfig     `yaml:"portal" mapstructure:"portal"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// PortalConfig configures the procedures portal client.
type PortalConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	PageSize          int     `yaml:"page_size" mapstructure:"page_size"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent     int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxRecords        int     `yaml:"max_records" mapstructure:"max_records"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown   int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// Timeout returns the per-request timeout.
func (p PortalConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// OutputConfig names the published files. Relative file names resolve
// against Dir.
type OutputConfig struct {
	Dir               string `yaml:"dir" mapstructure:"dir"`
	SnapshotFile      string `yaml:"snapshot_file" mapstructure:"snapshot_file"`
	AdditionsFile     string `yaml:"additions_file" mapstructure:"additions_file"`
	ModificationsFile string `yaml:"modifications_file" mapstructure:"modifications_file"`
	ErrorsFile        string `yaml:"errors_file" mapstructure:"errors_file"`
}

// RunConfig controls a single sync run.
type RunConfig struct {
	Bootstrap         bool    `yaml:"bootstrap" mapstructure:"bootstrap"`
	IDField           string  `yaml:"id_field" mapstructure:"id_field"`
	TimestampFormat   string  `yaml:"timestamp_format" mapstructure:"timestamp_format"`
	RemovalAlertRatio float64 `yaml:"removal_alert_ratio" mapstructure:"removal_alert_ratio"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MonitoringConfig configures alerting.
type MonitoringConfig struct {
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	RemovalAlertRatio   float64 `yaml:"removal_alert_ratio" mapstructure:"removal_alert_ratio"`
	FetchErrorRatio     float64 `yaml:"fetch_error_ratio" mapstructure:"fetch_error_ratio"`
	StaleAfterHours     int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// ServerConfig configures the run history API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("TRAMITES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key gets one so env overrides reach Unmarshal.
	v.SetDefault("portal.base_url", "https://www.gob.bo/ws/api/portal")
	v.SetDefault("portal.page_size", 30)
	v.SetDefault("portal.user_agent", "Mozilla/5.0")
	v.SetDefault("portal.timeout_secs", 30)
	v.SetDefault("portal.max_concurrent", 10)
	v.SetDefault("portal.max_retries", 3)
	v.SetDefault("portal.requests_per_second", 0)
	v.SetDefault("portal.max_records", 0)
	v.SetDefault("portal.breaker_threshold", 20)
	v.SetDefault("portal.breaker_cooldown_secs", 60)
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.snapshot_file", "tramites.jsonl")
	v.SetDefault("output.additions_file", "altas_bajas.csv")
	v.SetDefault("output.modifications_file", "modificaciones.csv")
	v.SetDefault("output.errors_file", "errores.jsonl")
	v.SetDefault("run.bootstrap", false)
	v.SetDefault("run.id_field", "id")
	v.SetDefault("run.timestamp_format", "2006-01-02T15:04-07:00")
	v.SetDefault("run.removal_alert_ratio", 0)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/runs.db")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.removal_alert_ratio", 0.10)
	v.SetDefault("monitoring.fetch_error_ratio", 0.05)
	v.SetDefault("monitoring.stale_after_hours", 192)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24*30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	// run.removal_alert_ratio is the older spelling of the threshold.
	if cfg.Run.RemovalAlertRatio > 0 {
		cfg.Monitoring.RemovalAlertRatio = cfg.Run.RemovalAlertRatio
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Every problem
// found is reported in one error.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "sync":
		if c.Portal.BaseURL == "" {
			errs = append(errs, "portal.base_url is required")
		}
		if c.Portal.PageSize < 1 || c.Portal.PageSize > 500 {
			errs = append(errs, "portal.page_size must be between 1 and 500")
		}
		if c.Portal.MaxConcurrent < 1 || c.Portal.MaxConcurrent > 50 {
			errs = append(errs, "portal.max_concurrent must be between 1 and 50")
		}
		if c.Portal.MaxRetries < 1 {
			errs = append(errs, "portal.max_retries must be >= 1")
		}
		if c.Portal.RequestsPerSecond < 0 {
			errs = append(errs, "portal.requests_per_second must be >= 0")
		}
		if c.Output.SnapshotFile == "" || c.Output.AdditionsFile == "" || c.Output.ModificationsFile == "" {
			errs = append(errs, "output file names are required")
		}
		if c.Run.IDField == "" {
			errs = append(errs, "run.id_field is required")
		}
		if c.Run.TimestampFormat == "" {
			errs = append(errs, "run.timestamp_format is required")
		}
		if r := c.Monitoring.RemovalAlertRatio; r < 0 || r > 1 {
			errs = append(errs, "monitoring.removal_alert_ratio must be between 0 and 1")
		}
		errs = append(errs, c.validateStore()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		errs = append(errs, c.validateStore()...)
	case "runs":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "", "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{fmt.Sprintf("store.database_url is required for driver %q", c.Store.Driver)}
		}
	case "none":
	default:
		return []string{fmt.Sprintf("store.driver %q is not one of sqlite, postgres, none", c.Store.Driver)}
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
