package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AccessConfig tunes role resolution without a deploy.
type AccessConfig struct {
	// DefaultLevelPriority is the effective-role order used when a caller does not pass one.
	DefaultLevelPriority []string `mapstructure:"defaultLevelPriority"`
	// TradeScopedRoles must carry trade codes on their branch membership.
	TradeScopedRoles []string `mapstructure:"tradeScopedRoles"`
}

func DefaultAccessConfig() AccessConfig {
	return AccessConfig{
		DefaultLevelPriority: []string{"property", "branch", "organisation"},
		TradeScopedRoles:     []string{"branch_auditor", "branch_sub_contractor"},
	}
}

// IsTradeScoped reports whether roleKey is listed in TradeScopedRoles.
func (c AccessConfig) IsTradeScoped(roleKey string) bool {
	for _, key := range c.TradeScopedRoles {
		if strings.EqualFold(strings.TrimSpace(key), roleKey) {
			return true
		}
	}
	return false
}

type AccessConfigHolder struct {
	current atomic.Value // holds AccessConfig
}

// NewStaticAccessConfigHolder returns a holder that never reloads.
func NewStaticAccessConfigHolder(cfg AccessConfig) *AccessConfigHolder {
	holder := &AccessConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewAccessConfigHolder() (*AccessConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("access")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/quickcart")
	v.AddConfigPath(".")

	v.SetEnvPrefix("QUICKCART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAccessConfig()
	v.SetDefault("access.defaultLevelPriority", defaults.DefaultLevelPriority)
	v.SetDefault("access.tradeScopedRoles", defaults.TradeScopedRoles)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg AccessConfig
	if err := v.UnmarshalKey("access", &cfg); err != nil {
		return nil, err
	}
	if err := validateAccessConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticAccessConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AccessConfig
		if err := v.UnmarshalKey("access", &updated); err != nil {
			log.Printf("[access-config] reload failed: %v", err)
			return
		}
		if err := validateAccessConfig(updated); err != nil {
			log.Printf("[access-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[access-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *AccessConfigHolder) Get() AccessConfig {
	if h == nil {
		return DefaultAccessConfig()
	}
	return h.current.Load().(AccessConfig)
}

func validateAccessConfig(cfg AccessConfig) error {
	if len(cfg.DefaultLevelPriority) == 0 {
		return errors.New("access.defaultLevelPriority cannot be empty")
	}
	for _, level := range cfg.DefaultLevelPriority {
		switch strings.ToLower(strings.TrimSpace(level)) {
		case "system", "organisation", "branch", "property":
		default:
			return errors.New("access.defaultLevelPriority contains unknown level " + level)
		}
	}
	return nil
}
