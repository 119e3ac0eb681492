package sync

import (
	"time"

	"github.com/nmathey/finahack/internal/platform/history"
)

// Config holds configuration for the sync service
type Config struct {
	// PollInterval is how often Run refreshes holdings
	PollInterval time.Duration

	// Retention is how long snapshots are kept
	Retention time.Duration

	// StrictKeys reconciles on the envelope/holding/assetType-scoped key
	// instead of the legacy assetId key
	StrictKeys bool

	// Enabled determines if background sync is enabled
	Enabled bool
}

// DefaultConfig returns the default sync configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 6 * time.Hour,
		Retention:    history.DefaultRetention,
		Enabled:      true,
	}
}

// ApplyDefaults replaces unset durations with their defaults
func (c *Config) ApplyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 6 * time.Hour
	}
	if c.Retention <= 0 {
		c.Retention = history.DefaultRetention
	}
}
