package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	defaultMu  sync.RWMutex
	defaultCfg *Config
)

// Load reads and validates the config file at path and installs it as the
// process default. A missing file yields a validated zero config, so the
// daemon runs out of the box.
func Load(path string) (*Config, error) {
	var cfg Config

	path = strings.TrimSpace(path)
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("parse config yaml: %w", err)
			}
		case os.IsNotExist(err):
			// defaults
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	defaultMu.Lock()
	defaultCfg = &cfg
	defaultMu.Unlock()
	return &cfg, nil
}

// Get returns the process default config loaded by Load.
func Get() (*Config, error) {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	if defaultCfg == nil {
		return nil, fmt.Errorf("config is not loaded")
	}
	return defaultCfg, nil
}
