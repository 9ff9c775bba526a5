// Package config loads server configuration from the environment.
package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the full server configuration.
type Config struct {
	// HTTPAddr is the listen address for the API server.
	HTTPAddr string `env:"HTTP_ADDR, default=:8080"`

	// ReadTimeout and WriteTimeout bound each HTTP request.
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT, default=15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT, default=30s"`

	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT, default=10s"`

	// DatabaseURL is the Postgres connection string. When empty the server
	// runs on the in-memory store, which loses everything on restart.
	DatabaseURL string `env:"DATABASE_URL"`

	// Plaid credentials. Plaid routes return 503 when these are unset.
	PlaidClientID string `env:"PLAID_CLIENT_ID"`
	PlaidSecret   string `env:"PLAID_SECRET"`
	PlaidEnv      string `env:"PLAID_ENV, default=sandbox"`

	LogLevel string `env:"LOG_LEVEL, default=info"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// PlaidEnabled reports whether Plaid credentials were provided.
func (c *Config) PlaidEnabled() bool {
	return c.PlaidClientID != "" && c.PlaidSecret != ""
}
