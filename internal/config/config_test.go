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

	assert.Equal(t, "data/zenbot.db", cfg.DatabasePath)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 1*time.Minute, cfg.MonitorInterval)
	assert.Equal(t, "SET50", cfg.BenchmarkSymbol)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("TELEGRAM_CHAT_ID", "12345")
	t.Setenv("BENCHMARK_SYMBOL", "SET100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, int64(12345), cfg.TelegramChatID)
	assert.Equal(t, "SET100", cfg.BenchmarkSymbol)
}

func TestLoadRejectsBadChatID(t *testing.T) {
	t.Setenv("TELEGRAM_CHAT_ID", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}
