// Package config reads the service configuration from the environment.
// A .env file is honored when present (loaded by the entrypoints via
// godotenv); variables already set in the environment win.
package config

import (
	"os"
	"strconv"
)

// Config holds everything the API server needs at startup.
type Config struct {
	Addr       string // listen address
	PGDSN      string // empty means in-memory stores
	RateBurst  int
	RatePerSec int

	MigrationsDir string
	SeedsDir      string
}

// Load reads LEARNHUB_* variables with sensible defaults.
func Load() Config {
	return Config{
		Addr:          envStr("LEARNHUB_ADDR", ":8080"),
		PGDSN:         os.Getenv("LEARNHUB_PG_DSN"),
		RateBurst:     envInt("LEARNHUB_RATE_BURST", 20),
		RatePerSec:    envInt("LEARNHUB_RATE_PER_SEC", 10),
		MigrationsDir: envStr("LEARNHUB_MIGRATIONS_DIR", "ops/migrations/sql"),
		SeedsDir:      envStr("LEARNHUB_SEEDS_DIR", "ops/migrations/seeds"),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
