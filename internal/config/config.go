// Package config reads tokenledger settings from TOKENLEDGER_* environment
// variables. Command-line flags override whatever is loaded here.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/tokenledger/internal/ledger"
)

// Config holds process-wide settings.
type Config struct {
	DB       string     `env:"DB" envDefault:"tokenledger.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	RateMode string     `env:"RATE_MODE" envDefault:"inline"`
	Format   string     `env:"FORMAT" envDefault:"text"`
}

// Prefix is prepended to every variable name.
const Prefix = "TOKENLEDGER_"

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: Prefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	if _, err := ledger.ParseRateMode(c.RateMode); err != nil {
		return fmt.Errorf("%sRATE_MODE: %w", Prefix, err)
	}
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("%sFORMAT: invalid format %q: must be 'text' or 'json'", Prefix, c.Format)
	}
	return nil
}

// Mode returns the parsed rate mode. Call Validate first.
func (c Config) Mode() ledger.RateMode {
	m, _ := ledger.ParseRateMode(c.RateMode)
	return m
}
