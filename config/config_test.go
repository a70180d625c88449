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
	t.Chdir(t.TempDir())

	cfg, err := Load("vaultd")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":8791", cfg.Server.ListenAddress)
	assert.Equal(t, time.Duration(0), cfg.Server.SessionTTL)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  listenaddress: ":7000"
  sessionttl: 5m
  requestrate: 20
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vaultd.yaml"), []byte(content), 0600))
	t.Chdir(dir)

	cfg, err := Load("vaultd")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.ListenAddress)
	assert.Equal(t, 5*time.Minute, cfg.Server.SessionTTL)
	assert.Equal(t, float64(20), cfg.Server.RequestRate)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched values keep their defaults.
	assert.Equal(t, ":9791", cfg.Server.MetricsAddress)
	assert.Equal(t, 100, cfg.Server.RequestBurst)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	content := `
server:
  listenaddress: "not an address"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vaultd.yaml"), []byte(content), 0600))
	t.Chdir(dir)

	_, err := Load("vaultd")
	assert.Error(t, err)
}
