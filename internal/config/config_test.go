package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
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
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/curator.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "kedra", cfg.Store.Database)
	assert.Equal(t, "decisions", cfg.Store.RawCollection)
	assert.Equal(t, "decisions_curated", cfg.Store.CuratedCollection)
	assert.Equal(t, "data/landing", cfg.Paths.LandingDir)
	assert.Equal(t, "data/curated", cfg.Paths.CuratedDir)
	assert.Equal(t, 1, cfg.Curate.Workers)
	assert.Equal(t, 256, cfg.Curate.ExtractCacheSize)
	assert.Equal(t, 200, cfg.Curate.MinTextRunes)
	assert.Equal(t, 500, cfg.Ingest.BatchSize)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 0.2, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yml := `
store:
  driver: postgres
  database_url: postgres://localhost/curator
curate:
  workers: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/curator", cfg.Store.DatabaseURL)
	assert.Equal(t, 4, cfg.Curate.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("curate:\n  workers: 4\n"), 0o644))
	t.Setenv("CURATE_CURATE_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Curate.Workers)
}

func TestLoadLegacyEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("MONGO_DB", "kedra_test")
	t.Setenv("MONGO_COLLECTION", "raw")
	t.Setenv("CURATED_COLLECTION", "curated")
	t.Setenv("FILES_STORE", "/srv/landing")
	t.Setenv("CURATED_STORE", "/srv/curated")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mongodb://db:27017", cfg.Store.DatabaseURL)
	assert.Equal(t, "kedra_test", cfg.Store.Database)
	assert.Equal(t, "raw", cfg.Store.RawCollection)
	assert.Equal(t, "curated", cfg.Store.CuratedCollection)
	assert.Equal(t, "/srv/landing", cfg.Paths.LandingDir)
	assert.Equal(t, "/srv/curated", cfg.Paths.CuratedDir)
}

func TestLoadPrefixedEnvBeatsLegacy(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MONGO_URI", "mongodb://legacy")
	t.Setenv("CURATE_STORE_DATABASE_URL", "mongodb://prefixed")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongodb://prefixed", cfg.Store.DatabaseURL)
}

func TestDefaultYAMLRoundTrip(t *testing.T) {
	data, err := DefaultYAML()
	require.NoError(t, err)

	var tree map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(data, &tree))
	assert.Equal(t, "sqlite", tree["store"]["driver"])
	assert.Equal(t, 8080, tree["server"]["port"])
	assert.Equal(t, "data/curated", tree["paths"]["curated_dir"])
}

func TestWriteDefaults(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, WriteDefaults(path, false))
	assert.Error(t, WriteDefaults(path, false))
	require.NoError(t, WriteDefaults(path, true))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 200, cfg.Curate.ProgressEvery)
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

func validDefaults() *Config {
	return &Config{
		Store:  StoreConfig{Driver: "sqlite", DatabaseURL: "data/curator.db"},
		Paths:  PathsConfig{LandingDir: "landing", CuratedDir: "curated"},
		Curate: CurateConfig{Workers: 1, ExtractCacheSize: 256},
		Ingest: IngestConfig{BatchSize: 500},
		Server: ServerConfig{Port: 8080},
		Monitoring: MonitoringConfig{
			FailureRateThreshold: 0.2,
			FileErrorThreshold:   0.1,
		},
	}
}

func TestValidateCurate(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("curate"))

	cfg.Paths.CuratedDir = ""
	cfg.Curate.Workers = 0
	err := cfg.Validate("curate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paths.curated_dir is required")
	assert.Contains(t, err.Error(), "curate.workers must be between 1 and 64")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "oracle"

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestValidateMemoryNeedsNoURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store = StoreConfig{Driver: "memory"}
	assert.NoError(t, cfg.Validate("migrate"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateServe_Thresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.FileErrorThreshold = 1.5

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.file_error_threshold")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
