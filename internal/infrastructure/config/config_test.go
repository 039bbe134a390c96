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

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, uint32(5), cfg.Breaker.MaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Breaker.OpenTimeout)
	assert.Equal(t, 2*time.Second, cfg.Degrade.FastWindow)
	assert.Equal(t, time.Second, cfg.RateLimit.WindowSize)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("BREAKER_MAX_FAILURES", "2")
	t.Setenv("DEGRADE_FAST_WINDOW", "500ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, uint32(2), cfg.Breaker.MaxFailures)
	assert.Equal(t, 500*time.Millisecond, cfg.Degrade.FastWindow)
}

func TestDefaultMatchesLoad(t *testing.T) {
	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), loaded)
}
