package main

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/rs/zerolog"
)

type Config struct {
	Address         string        `env:"ADDRESS,default=:8000"`
	DBPath          string        `env:"DB_PATH"`
	NATSDir         string        `env:"NATS_DIR"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	level zerolog.Level
}

func NewConfig() (*Config, error) {
	var cfg Config

	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL '%s': %w", cfg.LogLevel, err)
	}
	cfg.level = level

	if cfg.Address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", cfg.ShutdownTimeout)
	}
	return nil
}
