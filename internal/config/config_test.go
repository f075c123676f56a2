package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("DAIRY_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, 10, cfg.Data.MaxUndo)
	assert.Equal(t, 50.0, cfg.Billing.DefaultRate)
	assert.Equal(t, "mock", cfg.Delivery.Provider)
	assert.Equal(t, 5*time.Second, cfg.Delivery.SendDelay)
	assert.Equal(t, "8.8.8.8:53", cfg.NetCheck.Address)
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
data:
  dir: /srv/dairy
  max_undo: 0
billing:
  default_rate: 62.5
delivery:
  provider: aisensy
  send_delay: 1s
log:
  level: debug
`), 0o644))

	t.Setenv("DAIRY_CONFIG", path)
	t.Setenv("PORT", "9100")
	t.Setenv("WHATSAPP_API_KEY", "secret")
	t.Setenv("DAIRY_DATA_DIR", filepath.Join(dir, "data"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Data.Dir)
	assert.Equal(t, 10, cfg.Data.MaxUndo, "non-positive undo depth falls back")
	assert.Equal(t, 62.5, cfg.Billing.DefaultRate)
	assert.Equal(t, "aisensy", cfg.Delivery.Provider)
	assert.Equal(t, "secret", cfg.Delivery.APIKey)
	assert.Equal(t, time.Second, cfg.Delivery.SendDelay)
	assert.Equal(t, "debug", cfg.Log.Level)

	assert.Equal(t, filepath.Join(dir, "data", "Customers"), cfg.CustomersDir())
	assert.Equal(t, filepath.Join(dir, "data", "Monthly"), cfg.MonthlyDir())
	assert.Equal(t, filepath.Join(dir, "data", "Status"), cfg.StatusDir())
	assert.Equal(t, filepath.Join(dir, "data", "profile.yaml"), cfg.ProfilePath())
}
