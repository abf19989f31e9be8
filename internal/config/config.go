// Package config loads vectord's configuration from environment variables
// (with an optional .env file for local development), in the same shape as
// Config/Load/Validate/LogFields: caarlos0/env/v11 for struct-tag parsing,
// joho/godotenv for the optional .env file, zerolog for structured logging
// of what was loaded.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	// Storage
	StoreDir string `env:"VECTORD_STORE_DIR" envDefault:"vectors"`

	// Intake queue capacity (max queued messages per queue).
	IntakeCapacity int `env:"VECTORD_INTAKE_CAPACITY" envDefault:"10"`

	// Control-loop poll interval: how often the non-blocking multi-queue
	// receive cycle runs. A Go-idiomatic stand-in for busy-spinning
	// mq_receive(O_NONBLOCK) in a tight loop.
	PollInterval time.Duration `env:"VECTORD_POLL_INTERVAL" envDefault:"2ms"`

	// Intake rate limiting: token bucket per intake queue, guarding against
	// an unbounded goroutine count under request floods.
	MaxRequestsPerSec int `env:"VECTORD_MAX_REQUESTS_PER_SEC" envDefault:"2000"`
	RequestBurst      int `env:"VECTORD_REQUEST_BURST" envDefault:"200"`

	// Shutdown
	ShutdownGrace time.Duration `env:"VECTORD_SHUTDOWN_GRACE" envDefault:"5s"`

	// Metrics (Prometheus /metrics endpoint).
	MetricsAddr string `env:"VECTORD_METRICS_ADDR" envDefault:":9102"`

	// Resource sampling interval (gopsutil-backed process sampler).
	ResourceSampleInterval time.Duration `env:"VECTORD_RESOURCE_SAMPLE_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"VECTORD_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"VECTORD_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from an optional .env file and the environment.
// Priority: environment variables > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.StoreDir == "" {
		return fmt.Errorf("VECTORD_STORE_DIR is required")
	}
	if c.IntakeCapacity < 1 {
		return fmt.Errorf("VECTORD_INTAKE_CAPACITY must be > 0, got %d", c.IntakeCapacity)
	}
	if c.MaxRequestsPerSec < 1 {
		return fmt.Errorf("VECTORD_MAX_REQUESTS_PER_SEC must be > 0, got %d", c.MaxRequestsPerSec)
	}
	if c.RequestBurst < 1 {
		return fmt.Errorf("VECTORD_REQUEST_BURST must be > 0, got %d", c.RequestBurst)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("VECTORD_LOG_LEVEL must be one of debug/info/warn/error, got %q", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("VECTORD_LOG_FORMAT must be one of json/console, got %q", c.LogFormat)
	}
	return nil
}

// LogFields logs the loaded configuration as structured fields.
func (c *Config) LogFields(logger zerolog.Logger) {
	logger.Info().
		Str("store_dir", c.StoreDir).
		Int("intake_capacity", c.IntakeCapacity).
		Dur("poll_interval", c.PollInterval).
		Int("max_requests_per_sec", c.MaxRequestsPerSec).
		Int("request_burst", c.RequestBurst).
		Dur("shutdown_grace", c.ShutdownGrace).
		Str("metrics_addr", c.MetricsAddr).
		Dur("resource_sample_interval", c.ResourceSampleInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
