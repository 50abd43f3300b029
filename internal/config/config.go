// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the server.
type Config struct {
	// HTTPAddr is the listen address for the REST API.
	HTTPAddr string

	// DatabaseURL selects the postgres store; empty runs in-memory.
	DatabaseURL string

	// RedisAddr enables the leaderboard cache; empty disables it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// SweepSchedule is the cron expression for the nightly penalty sweep.
	SweepSchedule string

	// LeaderboardRefresh is the cache rebuild interval.
	LeaderboardRefresh time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", "15 0 * * *"),
		LeaderboardRefresh: time.Minute,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
	}

	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("REDIS_DB must be an integer: %w", err)
		}
		cfg.RedisDB = db
	}

	if raw := os.Getenv("LEADERBOARD_REFRESH"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("LEADERBOARD_REFRESH must be a duration: %w", err)
		}
		cfg.LeaderboardRefresh = d
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
