package config

import (
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
)

var ErrDiskNameRequired = errors.New("disk cache name is required")

// AdjustConfig fills defaults in place. It is idempotent.
func (cfg *Cache) AdjustConfig() {
	if cfg.Memory == nil {
		cfg.Memory = &MemoryCfg{}
	}
	cfg.Memory.adjust()

	if cfg.Disk == nil {
		cfg.Disk = &DiskCfg{}
	}
	cfg.Disk.adjust()

	if cfg.Telemetry.Enabled() && cfg.Telemetry.Interval <= 0 {
		cfg.Telemetry.Interval = defaultTelemetryInterval
	}
}

// AdjustConfig fills memory tier defaults in place for standalone use.
func (cfg *MemoryCfg) AdjustConfig() { cfg.adjust() }

// AdjustConfig fills disk tier defaults in place for standalone use.
func (cfg *DiskCfg) AdjustConfig() { cfg.adjust() }

// Validate reports configuration which cannot be defaulted.
func (cfg *Cache) Validate() error {
	if !cfg.Disk.Enabled() || cfg.Disk.Name == "" {
		return ErrDiskNameRequired
	}
	switch cfg.Disk.StorageMode {
	case StorageFile, StorageRelational, StorageMixed:
	default:
		return fmt.Errorf("unknown disk storage mode %q", cfg.Disk.StorageMode)
	}
	return nil
}

func LoadConfig(path string) (*Cache, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Cache
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		cfg = &Cache{}
	}
	cfg.AdjustConfig()

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}
