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

// BillingConfig carries the tunable billing knobs. Values are validated on
// load and on every reload; an invalid file never replaces a valid config.
type BillingConfig struct {
	// DailyGrantAmount is the free credit top-up applied lazily at most once
	// per DailyGrantInterval per account.
	DailyGrantAmount int64 `mapstructure:"dailyGrantAmount"`
	// DailyGrantInterval is the rolling window between free grants.
	DailyGrantInterval time.Duration `mapstructure:"dailyGrantInterval"`
	// MonthlyUsageCap bounds credits spent (not granted) per calendar month.
	MonthlyUsageCap int64 `mapstructure:"monthlyUsageCap"`
	// CorrelationWindow bounds the timestamp fallback when stitching a billing
	// transaction to its AI usage record.
	CorrelationWindow time.Duration `mapstructure:"correlationWindow"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		DailyGrantAmount:   5,
		DailyGrantInterval: 24 * time.Hour,
		MonthlyUsageCap:    500,
		CorrelationWindow:  5 * time.Second,
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewBillingConfigHolderFrom wraps a fixed config, used by tests.
func NewBillingConfigHolderFrom(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/creditengine/config") // Volume-mounted config
	v.AddConfigPath("/etc/creditengine")            // System config
	v.AddConfigPath(".")                            // Current directory (dev mode)

	v.SetEnvPrefix("CREDITENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.dailyGrantAmount", defaults.DailyGrantAmount)
	v.SetDefault("billing.dailyGrantInterval", defaults.DailyGrantInterval)
	v.SetDefault("billing.monthlyUsageCap", defaults.MonthlyUsageCap)
	v.SetDefault("billing.correlationWindow", defaults.CorrelationWindow)

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

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.DailyGrantAmount < 0 {
		return errors.New("billing.dailyGrantAmount cannot be negative")
	}
	if cfg.DailyGrantInterval <= 0 {
		return errors.New("billing.dailyGrantInterval must be positive")
	}
	if cfg.MonthlyUsageCap <= 0 {
		return errors.New("billing.monthlyUsageCap must be positive")
	}
	if cfg.CorrelationWindow <= 0 {
		return errors.New("billing.correlationWindow must be positive")
	}
	return nil
}
