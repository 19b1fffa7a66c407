package outbox

import (
	"strings"
	"time"

	"github.com/smallbiznis/quickcart/internal/config"
)

// Config controls the relay interval, batch size and target stream.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	Stream      string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 5 * time.Second,
		BatchSize:   100,
		Stream:      "quickcart.memberships",
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.OutboxInterval,
		BatchSize:   cfg.OutboxBatch,
		Stream:      cfg.OutboxStream,
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
	if strings.TrimSpace(c.Stream) == "" {
		c.Stream = defaults.Stream
	}
	return c
}
