package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds natscat's connection defaults. Values are loaded from an
// optional YAML file and can be overridden by environment variables.
type Config struct {
	NATS NATSSection `yaml:"nats"`
}

// NATSSection holds NATS connection settings.
type NATSSection struct {
	URL         string `yaml:"url"`
	InboxPrefix string `yaml:"inbox_prefix"`
	Name        string `yaml:"name"`
}

// LoadConfig reads a YAML config file (if path is non-empty and exists)
// and applies environment variable overrides. Environment variables take
// precedence over YAML values.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("NATS_INBOX_PREFIX"); v != "" {
		cfg.NATS.InboxPrefix = v
	}
	if v := os.Getenv("NATSCAT_NAME"); v != "" {
		cfg.NATS.Name = v
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.Name == "" {
		cfg.NATS.Name = "natscat"
	}

	return cfg, nil
}
