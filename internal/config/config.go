package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries process-level settings for the disbursement engine.
type Config struct {
	Environment string
	HTTPAddr    string
	DatabaseDSN string

	// MinimumPayoutCents gates which affiliates are payable.
	MinimumPayoutCents int64
	DefaultCurrency    string

	Retry    RetryConfig
	Rise     RiseConfig
	Recovery RecoveryConfig
}

// RetryConfig governs provider-call retries inside the orchestrator.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// RiseConfig holds credentials for the Rise payment network adapter.
type RiseConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RecoveryConfig controls the stuck-batch recovery worker.
type RecoveryConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load reads configuration from the environment, applying defaults
// suitable for local development against sqlite.
func Load() (Config, error) {
	cfg := Config{
		Environment:        getEnv("DISBURSE_ENV", "development"),
		HTTPAddr:           getEnv("DISBURSE_HTTP_ADDR", ":8080"),
		DatabaseDSN:        getEnv("DISBURSE_DATABASE_DSN", "file:disburse.db?cache=shared"),
		MinimumPayoutCents: 5000,
		DefaultCurrency:    "USD",
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      500 * time.Millisecond,
			MaxDelay:          10 * time.Second,
			BackoffMultiplier: 2.0,
		},
		Rise: RiseConfig{
			BaseURL: getEnv("DISBURSE_RISE_BASE_URL", "https://api.rise.works"),
			APIKey:  os.Getenv("DISBURSE_RISE_API_KEY"),
			Timeout: 30 * time.Second,
		},
		Recovery: RecoveryConfig{
			Enabled:      getEnv("DISBURSE_RECOVERY_ENABLED", "true") == "true",
			PollInterval: time.Minute,
			BatchSize:    10,
		},
	}

	if raw := os.Getenv("DISBURSE_MINIMUM_PAYOUT_CENTS"); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value < 0 {
			return Config{}, fmt.Errorf("invalid DISBURSE_MINIMUM_PAYOUT_CENTS: %q", raw)
		}
		cfg.MinimumPayoutCents = value
	}
	if raw := os.Getenv("DISBURSE_RETRY_MAX_ATTEMPTS"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 1 {
			return Config{}, fmt.Errorf("invalid DISBURSE_RETRY_MAX_ATTEMPTS: %q", raw)
		}
		cfg.Retry.MaxAttempts = value
	}
	if raw := os.Getenv("DISBURSE_RETRY_INITIAL_DELAY"); raw != "" {
		value, err := time.ParseDuration(raw)
		if err != nil || value < 0 {
			return Config{}, fmt.Errorf("invalid DISBURSE_RETRY_INITIAL_DELAY: %q", raw)
		}
		cfg.Retry.InitialDelay = value
	}
	if raw := os.Getenv("DISBURSE_RETRY_MAX_DELAY"); raw != "" {
		value, err := time.ParseDuration(raw)
		if err != nil || value < 0 {
			return Config{}, fmt.Errorf("invalid DISBURSE_RETRY_MAX_DELAY: %q", raw)
		}
		cfg.Retry.MaxDelay = value
	}
	if raw := os.Getenv("DISBURSE_RECOVERY_POLL_INTERVAL"); raw != "" {
		value, err := time.ParseDuration(raw)
		if err != nil || value <= 0 {
			return Config{}, fmt.Errorf("invalid DISBURSE_RECOVERY_POLL_INTERVAL: %q", raw)
		}
		cfg.Recovery.PollInterval = value
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
