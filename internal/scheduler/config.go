package scheduler

import (
	"time"

	"github.com/billforge/billforge/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		BatchSize:   50,
		JobTimeout:  30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

// ProvideConfig snapshots the hot-reloadable billing knobs at boot.
func ProvideConfig(billing *config.BillingConfigHolder) Config {
	current := billing.Current()
	return Config{
		RunInterval: current.RunInterval,
		BatchSize:   current.BatchSize,
	}.withDefaults()
}
