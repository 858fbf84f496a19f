package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.StatsInterval())
	assert.Equal(t, time.Minute, cfg.PersistInterval())
	assert.Equal(t, 30, cfg.StatsRetentionDays)
	assert.Equal(t, "/bin/bash", cfg.TerminalShell)
	assert.Equal(t, 60, cfg.TerminalStaleAfter)
	assert.Equal(t, 30, cfg.TerminalSweepEvery)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration())
	assert.False(t, cfg.IsProduction())
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RASPTERM_PORT", "4000")
	t.Setenv("RASPTERM_STATS_INTERVAL_MS", "1500")
	t.Setenv("RASPTERM_TERMINAL_SHELL", "/bin/sh")
	t.Setenv("RASPTERM_ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, 1500*time.Millisecond, cfg.StatsInterval())
	assert.Equal(t, "/bin/sh", cfg.TerminalShell)
	assert.True(t, cfg.IsProduction())
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.JWTSecret = ""
	cfg.StatsIntervalMs = 0
	cfg.StatsRetentionDays = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
	assert.Contains(t, err.Error(), "intervals")
	assert.Contains(t, err.Error(), "retention")
}
