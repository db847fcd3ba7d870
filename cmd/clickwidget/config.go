package main

import (
	"fmt"
	"net/url"

	"github.com/Netflix/go-env"
	"github.com/rs/zerolog"
)

type Config struct {
	Address      string `env:"ADDRESS,default=:3000"`
	ClicksAPIURL string `env:"CLICKS_API_URL,default=http://api.localhost:8000"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	DevMode      bool   `env:"DEV_MODE,default=false"`
	SessionDB    string `env:"SESSION_DB"`
	ServeAPI     bool   `env:"SERVE_API,default=false"`
	APIAddress   string `env:"API_ADDRESS,default=:8000"`

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

	u, err := url.Parse(cfg.ClicksAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CLICKS_API_URL must be an absolute URL, got '%s'", cfg.ClicksAPIURL)
	}

	if cfg.ServeAPI && cfg.APIAddress == "" {
		return fmt.Errorf("API_ADDRESS cannot be empty when SERVE_API is set")
	}

	return nil
}
