package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")

	path := writeConfig(t, `
env: test
logs:
  level: debug
tracker:
  name: unit
  max_live: 128
stress:
  workers: 4
  iterations: 100
  hold: 1ms
  rate: 500
  use_registry: true
registry:
  shards: 8
api:
  enabled: true
  port: "9090"
gc:
  interval: 10s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsTest())
	assert.Equal(t, "debug", cfg.Logs.Level)
	assert.Equal(t, "unit", cfg.Tracker.Name)
	assert.Equal(t, int64(128), cfg.Tracker.MaxLive)
	assert.Equal(t, 4, cfg.Stress.Workers)
	assert.Equal(t, 100, cfg.Stress.Iterations)
	assert.Equal(t, time.Millisecond, cfg.Stress.Hold)
	assert.Equal(t, 500.0, cfg.Stress.Rate)
	assert.True(t, cfg.Stress.UseRegistry)
	assert.False(t, cfg.Stress.UseCache)
	assert.Equal(t, uint64(8), cfg.Registry.Shards)
	assert.Equal(t, "9090", cfg.Api.Port)
	assert.Equal(t, 10*time.Second, cfg.GC.Interval)
	assert.Zero(t, cfg.GC.FreeOsMemInterval)

	// untouched sections keep defaults
	assert.Equal(t, "shared-handle", cfg.Api.Name)
	assert.Equal(t, int64(1_000), cfg.Cache.MaxCost)
	assert.Equal(t, time.Second, cfg.Stress.ReportInterval)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("APP_ENV", Prod)

	cfg, err := LoadConfig(writeConfig(t, "env: dev\n"))
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv("APP_ENV", "")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "env: staging\n"))
	assert.ErrorIs(t, err, ErrUnknownEnv)

	_, err = LoadConfig(writeConfig(t, "registry:\n  shards: 12\n"))
	assert.ErrorIs(t, err, ErrInvalidShards)

	_, err = LoadConfig(writeConfig(t, "stress:\n  workers: 0\n"))
	assert.ErrorIs(t, err, ErrInvalidStress)

	_, err = LoadConfig(writeConfig(t, "cache:\n  max_cost: -1\n"))
	assert.ErrorIs(t, err, ErrInvalidCacheSizes)

	_, err = LoadConfig(writeConfig(t, "stress: [1, 2\n"))
	assert.Error(t, err)
}
