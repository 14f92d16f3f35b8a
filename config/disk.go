package config

import (
	"math"
	"os"
	"time"
)

const (
	DefaultInlineThresholdBytes = 20 * 1024
	defaultDiskTrimInterval     = 60 * time.Second
	defaultQueryTimeout         = 5 * time.Second
)

// StorageMode decides where an encoded value lives.
type StorageMode string

const (
	// StorageFile stores every value as a standalone file under data/.
	StorageFile StorageMode = "file"

	// StorageRelational stores every value inline in the manifest row.
	StorageRelational StorageMode = "relational"

	// StorageMixed stores values larger than InlineThresholdBytes as files and the rest inline.
	StorageMixed StorageMode = "mixed"
)

// DiskCfg configures the persistent tier.
type DiskCfg struct {
	// Name is the cache name and the name of its directory under RootDirectory. Required.
	Name string `yaml:"name"`

	// RootDirectory holds one directory per cache name. Defaults to os.UserCacheDir() (or os.TempDir()).
	RootDirectory string `yaml:"root_directory"`

	// CountLimit is the maximum number of records. Zero or negative means unlimited.
	CountLimit int64 `yaml:"count_limit"`

	// CostLimit is the maximum total size (bytes) of all records. Zero or negative means unlimited.
	CostLimit int64 `yaml:"cost_limit"`

	// Expiration bounds the idle age of records (by access time).
	Expiration Expiration `yaml:"expiration"`

	// StorageMode defaults to StorageMixed.
	StorageMode StorageMode `yaml:"storage_mode"`

	// InlineThresholdBytes is the largest encoded value stored inline in StorageMixed mode. Default 20480.
	InlineThresholdBytes int64 `yaml:"inline_threshold_bytes"`

	// FreeDiskSpaceFloorBytes is the minimum free disk space the cache tries to keep.
	// Zero disables the free space trim.
	FreeDiskSpaceFloorBytes int64 `yaml:"free_disk_space_floor_bytes"`

	// TrimInterval is the period of the recurring trim. Default 60s.
	TrimInterval time.Duration `yaml:"trim_interval"`

	// QueryTimeout bounds every manifest statement. Default 5s.
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

func (cfg *DiskCfg) Enabled() bool {
	return cfg != nil
}

func (cfg *DiskCfg) adjust() {
	if cfg.RootDirectory == "" {
		if dir, err := os.UserCacheDir(); err == nil {
			cfg.RootDirectory = dir
		} else {
			cfg.RootDirectory = os.TempDir()
		}
	}
	if cfg.CountLimit <= 0 {
		cfg.CountLimit = math.MaxInt64
	}
	if cfg.CostLimit <= 0 {
		cfg.CostLimit = math.MaxInt64
	}
	if cfg.StorageMode == "" {
		cfg.StorageMode = StorageMixed
	}
	if cfg.InlineThresholdBytes == 0 {
		cfg.InlineThresholdBytes = DefaultInlineThresholdBytes
	}
	if cfg.TrimInterval <= 0 {
		cfg.TrimInterval = defaultDiskTrimInterval
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.Expiration.Mode == "" {
		cfg.Expiration.Mode = ExpireNever
	}
}
