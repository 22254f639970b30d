// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the bank service needs to start.
type Config struct {
	Port            string
	Env             string
	DatabaseURL     string
	NatsURL         string
	RedisURL        string
	CacheTTL        time.Duration
	ShutdownTimeout time.Duration
}

// Load reads the .env file if present, then the process environment.
// Missing optional backends (database, NATS, redis) leave their URL empty
// and the service falls back to in-memory collaborators.
func Load() *Config {
	// Not finding a .env file is fine in production.
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		NatsURL:         getEnv("NATS_URL", ""),
		RedisURL:        getEnv("REDIS_URL", ""),
		CacheTTL:        getDuration("CACHE_TTL", 30*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
