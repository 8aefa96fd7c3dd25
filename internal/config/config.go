package config

import (
	"fmt"
	"os"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string
	PinSalt     string
	NatsURL     string
	DevMode     bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port: "8080", // default port
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	// PIN_SALT is mixed into every identity and grant PIN hash; rotating it
	// invalidates all stored hashes.
	pinSalt := os.Getenv("PIN_SALT")
	if pinSalt == "" {
		return nil, fmt.Errorf("PIN_SALT environment variable is required")
	}
	cfg.PinSalt = pinSalt

	// NATS_URL is optional; without it real-time events are dropped locally.
	cfg.NatsURL = os.Getenv("NATS_URL")

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	return cfg, nil
}
