// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/vallemart2000/desarrolladora-sql/ledger"
)

// Config holds runtime configuration for the server.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	AppAddr         string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout  time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppIdleTimeout  time.Duration `envconfig:"APP_IDLE_TIMEOUT" default:"60s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	DBPath string `envconfig:"DB_PATH" default:"ledger.db"`

	// Empty disables the account cache.
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"10m"`

	NoiseThreshold    string `envconfig:"ARREARS_NOISE_THRESHOLD" default:"1.00"`
	CriticalAfterDays int    `envconfig:"ARREARS_CRITICAL_AFTER_DAYS" default:"60"`

	CancelTokenTTL time.Duration `envconfig:"CANCEL_TOKEN_TTL" default:"10m"`

	// Zero disables the background arrears sweep.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`

	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if _, err := cfg.Policy(); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute < 0 {
		return nil, fmt.Errorf("config: RATE_LIMIT_PER_MINUTE must not be negative")
	}
	return &cfg, nil
}

// Policy builds the arrears policy from the configured thresholds.
func (c *Config) Policy() (ledger.Policy, error) {
	noise, err := ledger.NewMoney(strings.TrimSpace(c.NoiseThreshold))
	if err != nil {
		return ledger.Policy{}, fmt.Errorf("config: ARREARS_NOISE_THRESHOLD: %w", err)
	}
	p := ledger.Policy{NoiseThreshold: noise, CriticalAfterDays: c.CriticalAfterDays}
	if err := p.Validate(); err != nil {
		return ledger.Policy{}, fmt.Errorf("config: %w", err)
	}
	return p, nil
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool {
	return c != nil && c.RedisAddr != ""
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
