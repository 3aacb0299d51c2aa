package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the engine
type Config struct {
	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Mode
	Debug bool

	// Database: sqlite path or postgres:// URL
	DatabasePath string

	// Market data
	QuoteWSURL  string // SET streaming bridge websocket
	QuoteAPIURL string // historical daily closes

	// MT5 broker bridge
	MT5BridgeURL string

	// Engine intervals
	SweepInterval   time.Duration
	MonitorInterval time.Duration

	// Backtest benchmark instrument
	BenchmarkSymbol string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		Debug: getEnvBool("DEBUG", false),

		DatabasePath: getEnv("DATABASE_PATH", "data/zenbot.db"),

		QuoteWSURL:  getEnv("QUOTE_WS_URL", "wss://quotes.thai-asset-zen.app/stream"),
		QuoteAPIURL: getEnv("QUOTE_API_URL", "https://quotes.thai-asset-zen.app/api"),

		MT5BridgeURL: getEnv("MT5_BRIDGE_URL", "http://localhost:8087"),

		SweepInterval:   getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		MonitorInterval: getEnvDuration("MONITOR_INTERVAL", 1*time.Minute),

		BenchmarkSymbol: getEnv("BENCHMARK_SYMBOL", "SET50"),
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
