package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "9999"
  read_timeout: 30s
database:
  driver: sqlite
  path: /var/lib/opsdesk/opsdesk.db
log:
  level: debug
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/opsdesk/opsdesk.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Keys absent from the file keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: "9999"
`)
	t.Setenv("OPSDESK_SERVER__PORT", "7777")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "7777", cfg.Server.Port)
}

func TestLoad_EnvSnakeCaseKeys(t *testing.T) {
	t.Setenv("OPSDESK_DATABASE__MAX_OPEN_CONNS", "42")
	t.Setenv("OPSDESK_UPLOADS__SWEEP_MIN_AGE", "1h")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Database.MaxOpenConns)
	assert.Equal(t, time.Hour, cfg.Uploads.SweepMinAge)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
}

func TestLoad_UnknownDriver(t *testing.T) {
	path := writeConfigFile(t, `
database:
  driver: mysql
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown database driver")
}
