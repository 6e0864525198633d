package config

import (
	"fmt"
	"os"
)

// Config holds all configuration for the application
type Config struct {
	DatabaseURL    string
	DataPath       string
	DeviceName     string
	LogLevel       string
	Port           string
	PrometheusPort string

	// Optional Telegram notification channel; alerts fall back to the log
	// when the token is unset.
	TelegramToken  string
	TelegramChatID string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DataPath:       getEnvOrDefault("DATA_PATH", "garagestock.db"),
		DeviceName:     getEnvOrDefault("DEVICE_NAME", hostname()),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		Port:           getEnvOrDefault("PORT", "8080"),
		PrometheusPort: getEnvOrDefault("PROMETHEUS_PORT", "9090"),
		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: os.Getenv("TELEGRAM_CHAT_ID"),
	}

	if cfg.DatabaseURL = os.Getenv("DATABASE_URL"); cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "garagestock-device"
	}
	return name
}
