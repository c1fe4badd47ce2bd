package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

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

	assert.Equal(t, "https://www.gob.bo/ws/api/portal", cfg.Portal.BaseURL)
	assert.Equal(t, 30, cfg.Portal.PageSize)
	assert.Equal(t, "Mozilla/5.0", cfg.Portal.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Portal.Timeout())
	assert.Equal(t, 10, cfg.Portal.MaxConcurrent)
	assert.Equal(t, 3, cfg.Portal.MaxRetries)
	assert.Zero(t, cfg.Portal.MaxRecords)
	assert.Equal(t, "tramites.jsonl", cfg.Output.SnapshotFile)
	assert.Equal(t, "altas_bajas.csv", cfg.Output.AdditionsFile)
	assert.Equal(t, "modificaciones.csv", cfg.Output.ModificationsFile)
	assert.Equal(t, "id", cfg.Run.IDField)
	assert.Equal(t, "2006-01-02T15:04-07:00", cfg.Run.TimestampFormat)
	assert.False(t, cfg.Run.Bootstrap)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.InDelta(t, 0.10, cfg.Monitoring.RemovalAlertRatio, 0.001)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NoError(t, cfg.Validate("sync"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
portal:
  page_size: 50
  max_records: 200
output:
  dir: /srv/tramites
run:
  bootstrap: true
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Portal.PageSize)
	assert.Equal(t, 200, cfg.Portal.MaxRecords)
	assert.Equal(t, "/srv/tramites", cfg.Output.Dir)
	assert.True(t, cfg.Run.Bootstrap)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Portal.MaxConcurrent)
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

	t.Setenv("TRAMITES_STORE_DRIVER", "postgres")
	t.Setenv("TRAMITES_LOG_LEVEL", "warn")
	t.Setenv("TRAMITES_MONITORING_WEBHOOK_URL", "https://hooks.example.com/x")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Monitoring.WebhookURL)
}

func TestLoadLegacyRemovalRatio(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TRAMITES_RUN_REMOVAL_ALERT_RATIO", "0.25")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.25, cfg.Monitoring.RemovalAlertRatio, 0.001)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("portal: [unclosed"), 0o644))

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
	cfg.Portal.BaseURL = "https://portal.example"
	cfg.Portal.PageSize = 30
	cfg.Portal.MaxConcurrent = 10
	cfg.Portal.MaxRetries = 3
	cfg.Output.SnapshotFile = "tramites.jsonl"
	cfg.Output.AdditionsFile = "altas_bajas.csv"
	cfg.Output.ModificationsFile = "modificaciones.csv"
	cfg.Run.IDField = "id"
	cfg.Run.TimestampFormat = "2006-01-02T15:04-07:00"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "runs.db"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateSync_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Portal.BaseURL = ""
	cfg.Run.IDField = ""
	cfg.Portal.MaxConcurrent = 0

	err := cfg.Validate("sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "portal.base_url is required")
	assert.Contains(t, err.Error(), "run.id_field is required")
	assert.Contains(t, err.Error(), "max_concurrent must be between 1 and 50")
}

func TestValidateSync_RemovalRatio(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring.RemovalAlertRatio = 1.5

	err := cfg.Validate("sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "removal_alert_ratio")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not one of")

	cfg.Store.Driver = "none"
	assert.NoError(t, cfg.Validate("runs"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
