package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "bizflow.db", cfg.Database.Path)
	assert.Equal(t, 10*time.Second, cfg.Engine.ActionTimeout)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "bizflow.events.>", cfg.NATS.EventsSubject)
	assert.Equal(t, "simulated", cfg.Messaging.Driver)
	assert.Equal(t, 60, cfg.RateLimit.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bizflow.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
database:
  driver: postgres
  url: postgres://localhost/bizflow
engine:
  action_timeout: 3s
ratelimit:
  limit: 5
  window: 30s
logging:
  format: json
`), 0o644))

	t.Setenv("BIZFLOW_HTTP_ADDR", ":9090")
	t.Setenv("BIZFLOW_RATELIMIT_LIMIT", "7")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/bizflow", cfg.Database.URL)
	assert.Equal(t, 3*time.Second, cfg.Engine.ActionTimeout)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 7, cfg.RateLimit.Limit)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_SearchPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "bizflow.yaml"),
		[]byte("http:\n  addr: \":7070\"\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BIZFLOW_DATABASE_DRIVER", "mysql")
	t.Setenv("BIZFLOW_MESSAGING_DRIVER", "nats")
	t.Setenv("BIZFLOW_LOGGING_FORMAT", "xml")

	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "nats.url is required")
	assert.Contains(t, err.Error(), "logging.format must be text or json")
}
