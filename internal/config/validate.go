package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tickloop/tickloop/internal/consts"
)

// Validate normalizes the config in place and rejects values outside their
// fixed sets.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config cannot be nil")
	}

	c.Scheduler.StoreDir = strings.TrimSpace(c.Scheduler.StoreDir)
	if c.Scheduler.StoreDir == "" {
		c.Scheduler.StoreDir = consts.TickloopHomeDir()
	}

	c.Scheduler.Mode = strings.ToLower(strings.TrimSpace(c.Scheduler.Mode))
	switch c.Scheduler.Mode {
	case "":
		c.Scheduler.Mode = "balanced"
	case "eco", "balanced", "aggressive":
	default:
		return fmt.Errorf("scheduler.mode must be eco, balanced or aggressive, got %q", c.Scheduler.Mode)
	}

	c.Scheduler.Profile = strings.ToLower(strings.TrimSpace(c.Scheduler.Profile))
	switch c.Scheduler.Profile {
	case "":
		c.Scheduler.Profile = "generic"
	case "generic", "mobile":
	default:
		return fmt.Errorf("scheduler.profile must be generic or mobile, got %q", c.Scheduler.Profile)
	}

	return nil
}
