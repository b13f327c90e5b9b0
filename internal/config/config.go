package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DBFile            string        `envconfig:"PALAVER_DB" default:"palaver.db"`
	APIAddr           string        `envconfig:"API_ADDR" default:":8080"`
	DirectoryCacheTTL time.Duration `envconfig:"DIRECTORY_CACHE_TTL" default:"5m"`
	SendBuffer        int           `envconfig:"SEND_BUFFER" default:"100"`
}

func Load() (*Config, error) {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("PALAVER_DB must not be empty")
	}

	if c.DirectoryCacheTTL <= 0 {
		return fmt.Errorf("DIRECTORY_CACHE_TTL must be greater than 0")
	}

	if c.SendBuffer < 1 {
		return fmt.Errorf("SEND_BUFFER must be at least 1")
	}

	return nil
}
