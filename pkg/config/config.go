// Package config loads server configuration from the environment. A .env
// file is honored when present so local runs need no exported variables.
package config

import (
	"fmt"
	"os"

	"github.com/anexo/cobro/pkg/logger"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	DBPath     string
	Country    string

	LogLevel  string
	LogFormat string
}

// Load reads the environment, applying defaults for everything optional.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	config := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
		DBPath:     getEnv("DB_PATH", "cobro.db"),
		Country:    getEnv("COUNTRY", "CO"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "console"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("LISTEN_ADDR cannot be empty")
	}
	return nil
}

// LoggerConfig maps the config onto the logger's settings.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{Level: c.LogLevel, Format: c.LogFormat}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
