package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingConfig carries the tunable billing knobs. It can be edited at
// runtime via a volume-mounted billing.yml; changes are hot-reloaded.
type BillingConfig struct {
	// DueDateOffsetDays is added to a generated document's issue date to
	// produce its due date.
	DueDateOffsetDays int `mapstructure:"dueDateOffsetDays"`

	// Scheduler loop tuning.
	RunInterval time.Duration `mapstructure:"runInterval"`
	BatchSize   int           `mapstructure:"batchSize"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DueDateOffsetDays: 30,
		RunInterval:       time.Minute,
		BatchSize:         50,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/billforge/config") // Volume-mounted config
	v.AddConfigPath("/etc/billforge")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("BILLFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.dueDateOffsetDays", defaults.DueDateOffsetDays)
	v.SetDefault("billing.runInterval", defaults.RunInterval)
	v.SetDefault("billing.batchSize", defaults.BatchSize)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-config] reload failed: %v", err)
			return
		}
		if err := validateBillingConfig(updated); err != nil {
			log.Printf("[billing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config with no file
// watching. Used by tests and tools that do not read billing.yml.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// Current returns the active billing config snapshot.
func (h *BillingConfigHolder) Current() BillingConfig {
	cfg, _ := h.current.Load().(BillingConfig)
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.DueDateOffsetDays < 0 {
		return errors.New("billing.dueDateOffsetDays must not be negative")
	}
	if cfg.RunInterval < 0 {
		return errors.New("billing.runInterval must not be negative")
	}
	if cfg.BatchSize < 0 {
		return errors.New("billing.batchSize must not be negative")
	}
	return nil
}
