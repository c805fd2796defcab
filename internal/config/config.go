// Package config loads engine configuration from an optional YAML file
// layered with environment variables. Environment variables win over the
// file; the file wins over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds application-wide configuration.
type Config struct {
	// Debug enables debug logging and additional diagnostics
	Debug bool `yaml:"debug"`

	// StoragePath is the directory where history and settings are stored
	StoragePath string `yaml:"storagePath"`

	// ConnectTimeout bounds connection establishment for streaming sessions
	ConnectTimeout time.Duration `yaml:"connectTimeout"`

	// CloseTimeout bounds graceful teardown before it is abandoned
	CloseTimeout time.Duration `yaml:"closeTimeout"`

	// RequestTimeout bounds one-shot HTTP and GraphQL requests
	RequestTimeout time.Duration `yaml:"requestTimeout"`

	// HistoryLimit caps the number of persisted history entries
	HistoryLimit int `yaml:"historyLimit"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Debug:          false,
		StoragePath:    "", // storage package picks the platform default
		ConnectTimeout: 15 * time.Second,
		CloseTimeout:   5 * time.Second,
		RequestTimeout: 30 * time.Second,
		HistoryLimit:   200,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if path is non-empty; a missing file is an error), then environment
// variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv creates a configuration from defaults and environment variables
// only, for callers that skip the config file.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	if debugStr := os.Getenv("WIRECAT_DEBUG"); debugStr != "" {
		if debug, err := strconv.ParseBool(debugStr); err == nil {
			c.Debug = debug
		}
	}
	if storagePath := os.Getenv("WIRECAT_STORAGE_PATH"); storagePath != "" {
		c.StoragePath = storagePath
	}
	if timeoutStr := os.Getenv("WIRECAT_REQUEST_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil {
			c.RequestTimeout = d
		}
	}
}

func (c *Config) validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connectTimeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.CloseTimeout <= 0 {
		return fmt.Errorf("closeTimeout must be positive, got %s", c.CloseTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("requestTimeout must be positive, got %s", c.RequestTimeout)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("historyLimit must not be negative, got %d", c.HistoryLimit)
	}
	return nil
}
