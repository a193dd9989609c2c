package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "garmin.com", cfg.GarminDomain)
	assert.Equal(t, 14, cfg.SyncDays)
	assert.Equal(t, 4, cfg.SyncConcurrency)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 8.0, cfg.Coach.SleepTargetHours)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoadFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dataDir: /tmp/pulse-test
garmin:
  domain: garmin.cn
  email: user@example.org
sync:
  days: 30
  timeout: 20s
coach:
  sleepTargetHours: 7.5
`), 0o600))

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "garmin.cn", cfg.GarminDomain)
	assert.Equal(t, "user@example.org", cfg.GarminEmail)
	assert.Equal(t, 30, cfg.SyncDays)
	assert.Equal(t, 20*time.Second, cfg.SyncTimeout)
	assert.Equal(t, 7.5, cfg.Coach.SleepTargetHours)
	// Defaults survive where the file is silent.
	assert.Equal(t, 8.0, DefaultCoachConfig().SleepTargetHours)
	assert.Equal(t, 12.0, cfg.Coach.HRVPenaltyWeight)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("garmin:\n  domain: garmin.cn\n"), 0o600))

	t.Setenv("PULSE_GARMIN_DOMAIN", "garmin.dev")
	t.Setenv("PULSE_SYNC_DAYS", "7")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "garmin.dev", cfg.GarminDomain)
	assert.Equal(t, 7, cfg.SyncDays)
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bogusKey: true\n"), 0o600))

	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
}

func TestValidateBounds(t *testing.T) {
	base, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"days too high", func(c *AppConfig) { c.SyncDays = 400 }},
		{"zero concurrency", func(c *AppConfig) { c.SyncConcurrency = 0 }},
		{"concurrency too high", func(c *AppConfig) { c.SyncConcurrency = 99 }},
		{"bad listen addr", func(c *AppConfig) { c.ListenAddr = "no-port" }},
		{"empty data dir", func(c *AppConfig) { c.DataDir = "" }},
		{"bad coach", func(c *AppConfig) { c.Coach.SleepTargetHours = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestHolderReloadAppliesReloadableOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: info\n"), 0o600))

	loader := NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	h := NewHolder(cfg, loader, path)

	require.NoError(t, os.WriteFile(path, []byte("logLevel: debug\napi:\n  listenAddr: \":9999\"\n"), 0o600))
	require.NoError(t, h.Reload())

	got := h.Current()
	assert.Equal(t, "debug", got.LogLevel)
	// Listen address is immutable at runtime.
	assert.Equal(t, cfg.ListenAddr, got.ListenAddr)
}

func TestParseHelpers(t *testing.T) {
	t.Setenv("PULSE_TEST_INT", "42")
	t.Setenv("PULSE_TEST_BAD_INT", "nope")
	t.Setenv("PULSE_TEST_BOOL", "yes")
	t.Setenv("PULSE_TEST_DUR", "90s")

	assert.Equal(t, 42, ParseInt("PULSE_TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("PULSE_TEST_BAD_INT", 1))
	assert.Equal(t, 7, ParseInt("PULSE_TEST_MISSING", 7))
	assert.True(t, ParseBool("PULSE_TEST_BOOL", false))
	assert.Equal(t, 90*time.Second, ParseDuration("PULSE_TEST_DUR", time.Second))
}
