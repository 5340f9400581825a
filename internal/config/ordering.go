package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	DefaultMaxOrderQuantity     = 1000
	DefaultNearThresholdPercent = 80
)

// OrderingConfig holds the business limits applied to order submissions.
type OrderingConfig struct {
	// MaxQuantity is the upper bound used for products without graduated prices.
	MaxQuantity int `mapstructure:"maxQuantity"`
	// NearThresholdPercent marks a campaign NEAR_THRESHOLD when no notification rule is active.
	NearThresholdPercent int `mapstructure:"nearThresholdPercent"`
}

func DefaultOrderingConfig() OrderingConfig {
	return OrderingConfig{
		MaxQuantity:          DefaultMaxOrderQuantity,
		NearThresholdPercent: DefaultNearThresholdPercent,
	}
}

type OrderingConfigHolder struct {
	current atomic.Value // holds OrderingConfig
}

// NewStaticOrderingConfigHolder returns a holder that never reloads.
func NewStaticOrderingConfigHolder(cfg OrderingConfig) *OrderingConfigHolder {
	holder := &OrderingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewOrderingConfigHolder() (*OrderingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("ordering")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/merchline")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MERCHLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultOrderingConfig()
	v.SetDefault("ordering.maxQuantity", defaults.MaxQuantity)
	v.SetDefault("ordering.nearThresholdPercent", defaults.NearThresholdPercent)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg OrderingConfig
	if err := v.UnmarshalKey("ordering", &cfg); err != nil {
		return nil, err
	}
	if err := validateOrderingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticOrderingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated OrderingConfig
		if err := v.UnmarshalKey("ordering", &updated); err != nil {
			log.Printf("[ordering-config] reload failed: %v", err)
			return
		}
		if err := validateOrderingConfig(updated); err != nil {
			log.Printf("[ordering-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[ordering-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *OrderingConfigHolder) Get() OrderingConfig {
	if h == nil {
		return DefaultOrderingConfig()
	}
	cfg, ok := h.current.Load().(OrderingConfig)
	if !ok {
		return DefaultOrderingConfig()
	}
	return cfg
}

func validateOrderingConfig(cfg OrderingConfig) error {
	if cfg.MaxQuantity < 1 {
		return errors.New("ordering.maxQuantity must be at least 1")
	}
	if cfg.NearThresholdPercent < 0 || cfg.NearThresholdPercent > 100 {
		return errors.New("ordering.nearThresholdPercent must be between 0 and 100")
	}
	return nil
}
