package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"incoming-inspector/internal/platform/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, filepath.Join("data", "reports"), cfg.ReportsDir())
	assert.Equal(t, filepath.Join("data", "exports"), cfg.ExportsDir())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	p := filepath.Join(t.TempDir(), "inspector.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
db: /var/lib/inspector/inspector.db
catalog:
  path: /etc/inspector/catalog.yaml
  debounce: 2s
backend:
  url: https://mro.example.com/api
  timeout: 30s
listen: 0.0.0.0:9000
log:
  level: debug
  json: true
reports:
  dir: /srv/reports
`), 0o644))

	t.Setenv("INSPECTOR_LISTEN", "127.0.0.1:9100")
	t.Setenv("INSPECTOR_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/inspector/inspector.db", cfg.DBPath)
	assert.Equal(t, "/etc/inspector/catalog.yaml", cfg.CatalogPath)
	assert.Equal(t, 2*time.Second, cfg.CatalogDebounce)
	assert.Equal(t, "https://mro.example.com/api", cfg.BackendURL)
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
	assert.Equal(t, "127.0.0.1:9100", cfg.ListenAddr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, "/srv/reports", cfg.ReportsDir())
	assert.Equal(t, filepath.Join("/var/lib/inspector", "exports"), cfg.ExportsDir())

	lc := cfg.Logging("inspector-cli")
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.Equal(t, "inspector-cli", lc.ServiceName)
	assert.True(t, lc.JSONFormat)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("backend:\n  timeout: soon\n"), 0o644))
	_, err := LoadConfig(bad)
	require.Error(t, err)

	t.Setenv("INSPECTOR_LOG_LEVEL", "loud")
	_, err = LoadConfig("")
	require.Error(t, err)
}
