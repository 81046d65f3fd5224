package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Queue.DefaultPriority)
	assert.Equal(t, 3, cfg.Queue.DefaultMaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Queue.DefaultRetryDelay)
	assert.False(t, cfg.Queue.StuckSweepEnabled)
	assert.Same(t, cfg, Global)
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("QUEUE_DEFAULT_MAX_RETRIES", "7")
	t.Setenv("QUEUE_POLL_INTERVAL", "90s")
	t.Setenv("QUEUE_DEFAULT_RETRY_DELAY", "45") // bare integers are seconds
	t.Setenv("QUEUE_STUCK_SWEEP_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 7, cfg.Queue.DefaultMaxRetries)
	assert.Equal(t, 90*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 45*time.Second, cfg.Queue.DefaultRetryDelay)
	assert.True(t, cfg.Queue.StuckSweepEnabled)
}
