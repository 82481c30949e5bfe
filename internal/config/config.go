package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Curate     CurateConfig     `yaml:"curate" mapstructure:"curate"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver             string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL        string `yaml:"database_url" mapstructure:"database_url"`
	Database           string `yaml:"database" mapstructure:"database"`
	RawCollection      string `yaml:"raw_collection" mapstructure:"raw_collection"`
	CuratedCollection  string `yaml:"curated_collection" mapstructure:"curated_collection"`
	RunsCollection     string `yaml:"runs_collection" mapstructure:"runs_collection"`
	MaxConns           int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns           int32  `yaml:"min_conns" mapstructure:"min_conns"`
	ConnectTimeoutSecs int    `yaml:"connect_timeout_secs" mapstructure:"connect_timeout_secs"`
}

// PathsConfig locates the landing and curated file stores.
type PathsConfig struct {
	LandingDir string `yaml:"landing_dir" mapstructure:"landing_dir"`
	CuratedDir string `yaml:"curated_dir" mapstructure:"curated_dir"`
}

// CurateConfig tunes a curation run.
type CurateConfig struct {
	Workers          int     `yaml:"workers" mapstructure:"workers"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	ExtractCacheSize int     `yaml:"extract_cache_size" mapstructure:"extract_cache_size"`
	UpsertRetries    int     `yaml:"upsert_retries" mapstructure:"upsert_retries"`
	MinTextRunes     int     `yaml:"min_text_runes" mapstructure:"min_text_runes"`
	MetricsFile      string  `yaml:"metrics_file" mapstructure:"metrics_file"`
	ProgressEvery    int     `yaml:"progress_every" mapstructure:"progress_every"`
}

// IngestConfig tunes raw record loading.
type IngestConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig holds alert thresholds for curation runs.
type MonitoringConfig struct {
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	FileErrorThreshold   float64 `yaml:"file_error_threshold" mapstructure:"file_error_threshold"`
	StalledRunHours      int     `yaml:"stalled_run_hours" mapstructure:"stalled_run_hours"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps the crawler deployment's environment names onto config keys.
var legacyEnv = map[string]string{
	"store.database_url":       "MONGO_URI",
	"store.database":           "MONGO_DB",
	"store.raw_collection":     "MONGO_COLLECTION",
	"store.curated_collection": "CURATED_COLLECTION",
	"paths.landing_dir":        "FILES_STORE",
	"paths.curated_dir":        "CURATED_STORE",
}

// Defaults returns the default settings keyed by config path.
func Defaults() map[string]any {
	return map[string]any{
		"store.driver":                      "sqlite",
		"store.database_url":                "data/curator.db",
		"store.database":                    "kedra",
		"store.raw_collection":              "decisions",
		"store.curated_collection":          "decisions_curated",
		"store.runs_collection":             "curation_runs",
		"store.max_conns":                   10,
		"store.min_conns":                   2,
		"store.connect_timeout_secs":        6,
		"paths.landing_dir":                 "data/landing",
		"paths.curated_dir":                 "data/curated",
		"curate.workers":                    1,
		"curate.rate_limit":                 0.0,
		"curate.extract_cache_size":         256,
		"curate.upsert_retries":             3,
		"curate.min_text_runes":             200,
		"curate.metrics_file":               "",
		"curate.progress_every":             200,
		"ingest.batch_size":                 500,
		"server.port":                       8080,
		"server.cors_origins":               []string{"*"},
		"monitoring.failure_rate_threshold": 0.2,
		"monitoring.file_error_threshold":   0.1,
		"monitoring.stalled_run_hours":      6,
		"monitoring.lookback_window_hours":  24,
		"monitoring.check_interval_secs":    300,
		"monitoring.webhook_url":            "",
		"log.level":                         "info",
		"log.format":                        "json",
	}
}

// DefaultYAML renders Defaults as a nested config.yaml document.
func DefaultYAML() ([]byte, error) {
	tree := map[string]map[string]any{}
	for key, val := range Defaults() {
		section, name, _ := strings.Cut(key, ".")
		if tree[section] == nil {
			tree[section] = map[string]any{}
		}
		tree[section][name] = val
	}
	out, err := yaml.Marshal(tree)
	return out, eris.Wrap(err, "config: marshal defaults")
}

// WriteDefaults writes DefaultYAML to path, refusing to overwrite unless force is set.
func WriteDefaults(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return eris.Errorf("config: %s already exists", path)
	}
	data, err := DefaultYAML()
	if err != nil {
		return err
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "config: write %s", path)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CURATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "CURATE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", env)
		}
	}

	for key, val := range Defaults() {
		v.SetDefault(key, val)
	}

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

var validDrivers = map[string]bool{"postgres": true, "sqlite": true, "mongo": true, "memory": true}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	if !validDrivers[c.Store.Driver] {
		errs = append(errs, fmt.Sprintf("store.driver %q must be one of postgres, sqlite, mongo, memory", c.Store.Driver))
	}
	if c.Store.Driver != "memory" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "curate":
		if c.Paths.LandingDir == "" {
			errs = append(errs, "paths.landing_dir is required")
		}
		if c.Paths.CuratedDir == "" {
			errs = append(errs, "paths.curated_dir is required")
		}
		if c.Curate.Workers < 1 || c.Curate.Workers > 64 {
			errs = append(errs, "curate.workers must be between 1 and 64")
		}
		if c.Curate.RateLimit < 0 {
			errs = append(errs, "curate.rate_limit must be >= 0")
		}
		if c.Curate.ExtractCacheSize < 0 {
			errs = append(errs, "curate.extract_cache_size must be >= 0")
		}
	case "ingest":
		if c.Ingest.BatchSize < 1 {
			errs = append(errs, "ingest.batch_size must be > 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		for name, v := range map[string]float64{
			"monitoring.failure_rate_threshold": c.Monitoring.FailureRateThreshold,
			"monitoring.file_error_threshold":   c.Monitoring.FileErrorThreshold,
		} {
			if v < 0 || v > 1 {
				errs = append(errs, name+" must be between 0 and 1")
			}
		}
	case "migrate", "report", "runs":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
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
