package config

import (
	"math"
	"time"
)

const defaultMemoryTrimInterval = 5 * time.Second

// MemoryCfg configures the in-memory LRU tier.
type MemoryCfg struct {
	// CountLimit is the maximum number of entries. Zero or negative means unlimited.
	CountLimit int64 `yaml:"count_limit"`

	// CostLimit is the maximum total cost (bytes) of all entries. Zero or negative means unlimited.
	// Exceeding it schedules a background cost trim rather than evicting inline.
	CostLimit int64 `yaml:"cost_limit"`

	// Expiration bounds the idle age of entries, enforced by the recurring trim.
	Expiration Expiration `yaml:"expiration"`

	// TrimInterval is the period of the recurring cost/count/age trim. Default 5s.
	TrimInterval time.Duration `yaml:"trim_interval"`

	// ClearOnLowMemory drops the whole tier when the embedding application reports memory pressure.
	ClearOnLowMemory bool `yaml:"clear_on_low_memory"`

	// ClearOnBackground drops the whole tier when the embedding application goes to background.
	ClearOnBackground bool `yaml:"clear_on_background"`
}

func (cfg *MemoryCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *MemoryCfg) adjust() {
	if cfg.CountLimit <= 0 {
		cfg.CountLimit = math.MaxInt64
	}
	if cfg.CostLimit <= 0 {
		cfg.CostLimit = math.MaxInt64
	}
	if cfg.TrimInterval <= 0 {
		cfg.TrimInterval = defaultMemoryTrimInterval
	}
	if cfg.Expiration.Mode == "" {
		cfg.Expiration.Mode = ExpireNever
	}
}
