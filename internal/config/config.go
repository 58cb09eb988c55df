// Package config centralizes process configuration. It loads an optional
// .env file (github.com/joho/godotenv — development convenience) on top
// of os.Getenv, reads the environment into a typed struct once at startup
// rather than scattering getenv calls across call sites, and validates it
// with github.com/go-playground/validator/v10.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full set of process-level configuration inputs.
type Config struct {
	ExchangeRESTBaseURL   string `validate:"required,url"`
	ExchangeStreamURL     string `validate:"required,url"`
	ExchangeKeyID         string `validate:"required"`
	ExchangePrivateKeyPEM string `validate:"required"`

	SportsFeedBaseURL string `validate:"required,url"`
	SportsFeedAPIKey  string `validate:"required"`

	DatabaseURL string
	RedisURL    string
	KafkaBroker string

	LogLevel string `validate:"oneof=debug info warn error"`

	EvaluationInterval    time.Duration `validate:"required"`
	NBAPollInterval       time.Duration `validate:"required"`
	OddsPollInterval      time.Duration `validate:"required"`
	DiscoveryPollInterval time.Duration `validate:"required"`

	HTTPPort string `validate:"required"`
}

// Load reads .env (if present), then the process environment, into a
// validated Config. Missing optional values fall back to documented
// defaults.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; local dev convenience only

	cfg := &Config{
		ExchangeRESTBaseURL:   getenv("EXCHANGE_REST_BASE_URL", ""),
		ExchangeStreamURL:     getenv("EXCHANGE_STREAM_URL", ""),
		ExchangeKeyID:         getenv("EXCHANGE_KEY_ID", ""),
		ExchangePrivateKeyPEM: getenv("EXCHANGE_PRIVATE_KEY_PEM", ""),

		SportsFeedBaseURL: getenv("SPORTSFEED_BASE_URL", ""),
		SportsFeedAPIKey:  getenv("SPORTSFEED_API_KEY", ""),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		KafkaBroker: os.Getenv("KAFKA_BROKER"),

		LogLevel: getenv("LOG_LEVEL", "info"),

		HTTPPort: getenv("PORT", "8080"),
	}

	var err error
	if cfg.EvaluationInterval, err = getenvDuration("EVALUATION_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.NBAPollInterval, err = getenvDuration("NBA_POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.OddsPollInterval, err = getenvDuration("ODDS_POLL_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.DiscoveryPollInterval, err = getenvDuration("DISCOVERY_POLL_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}
