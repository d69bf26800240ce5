// Package config loads tool settings from the environment and the
// deployment profile file.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel        string
	DiskpartTimeout time.Duration
	InventoryTTL    time.Duration
	MaxConcurrency  int
}

// Load loads configuration from environment variables.
// Automatically loads .env file if present.
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DiskpartTimeout: getEnvSeconds("DISKPART_TIMEOUT_SECONDS", 120),
		InventoryTTL:    getEnvSeconds("INVENTORY_TTL_SECONDS", 30),
		MaxConcurrency:  getEnvInt("MAX_CONCURRENCY", 0),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
