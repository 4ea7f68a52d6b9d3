package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	LogLevel       string
	LogFormat      string
	WebhookURL     string
	Port           string
	MigrationsPath string
}

// Load loads configuration from the environment. A .env file in the working
// directory is read first when present, real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
		WebhookURL:     os.Getenv("WEBHOOK_URL"),
		Port:           getEnvOrDefault("PORT", "8080"),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "migrations"),
	}

	// Required environment variables
	if cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN"); cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN environment variable is required")
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
