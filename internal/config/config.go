package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.wabridge/config.toml.
type Config struct {
	// Port the gateway HTTP server listens on.
	Port int `toml:"port"`
	// APISecret is the shared bearer secret every gateway caller must present.
	APISecret string `toml:"api_secret"`
	// Session names the provider session this daemon owns.
	Session string `toml:"session"`
}

// Default returns the config used when no file exists.
func Default() *Config {
	return &Config{
		Port:    3000,
		Session: "main",
	}
}

// Load reads config from the given path, applying defaults for unset fields.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the config is usable for starting the daemon.
func (c *Config) Validate() error {
	if c.APISecret == "" {
		return fmt.Errorf("api_secret must be set")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
