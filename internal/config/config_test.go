package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.NoError(t, err)

	assert.Equal(t, "/etc/pve/firewall", cfg.ConfigDir)
	assert.False(t, cfg.Lenient)

	interval, err := cfg.Interval()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, interval)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxfw.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
config_dir         = "/tmp/fw"
reconcile_interval = "30s"
lenient            = true
log_level          = "debug"
metrics_listen     = "127.0.0.1:9632"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/fw", cfg.ConfigDir)
	assert.True(t, cfg.Lenient)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9632", cfg.MetricsListen)

	interval, err := cfg.Interval()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, interval)
}

func TestLoadRejectsBadInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxfw.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`reconcile_interval = "sometimes"`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
