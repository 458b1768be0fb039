package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, time.Second, cfg.SuppressionWindow)
	assert.Equal(t, 30*time.Second, cfg.StopCooldown)
	assert.Equal(t, 64, cfg.EventBuffer)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "focusguard.yaml")
	payload := "logLevel: debug\ntickInterval: 250ms\nhistoryLimit: 20\n"
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 20, cfg.HistoryLimit)
	// Untouched keys keep their defaults.
	assert.Equal(t, time.Second, cfg.PollInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FOCUSGUARD_LOG_LEVEL", "warn")
	t.Setenv("FOCUSGUARD_TICK_INTERVAL", "2s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
}

func TestLoad_RejectsBadIntervals(t *testing.T) {
	t.Setenv("FOCUSGUARD_TICK_INTERVAL", "0s")

	_, err := Load("")
	assert.Error(t, err)
}
