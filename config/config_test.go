package config

import (
	"github.com/stretchr/testify/require"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadConfig_ParsesAllSections verifies yaml sections and durations are decoded.
func TestLoadConfig_ParsesAllSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	yml := `
memory:
  count_limit: 20
  cost_limit: 1048576
  expiration:
    mode: seconds
    seconds: 30
  trim_interval: 2s
  clear_on_low_memory: true
disk:
  name: images
  root_directory: /tmp/tier-cache
  storage_mode: file
  inline_threshold_bytes: 4096
  free_disk_space_floor_bytes: 1024
  trim_interval: 10s
  expiration:
    mode: instant
    instant: 2030-01-02T03:04:05Z
telemetry:
  interval: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, int64(20), cfg.Memory.CountLimit)
	require.Equal(t, int64(1048576), cfg.Memory.CostLimit)
	require.Equal(t, ExpireSeconds, cfg.Memory.Expiration.Mode)
	require.Equal(t, 2*time.Second, cfg.Memory.TrimInterval)
	require.True(t, cfg.Memory.ClearOnLowMemory)
	require.False(t, cfg.Memory.ClearOnBackground)

	require.Equal(t, "images", cfg.Disk.Name)
	require.Equal(t, "/tmp/tier-cache", cfg.Disk.RootDirectory)
	require.Equal(t, StorageFile, cfg.Disk.StorageMode)
	require.Equal(t, int64(4096), cfg.Disk.InlineThresholdBytes)
	require.Equal(t, int64(1024), cfg.Disk.FreeDiskSpaceFloorBytes)
	require.Equal(t, 10*time.Second, cfg.Disk.TrimInterval)
	require.Equal(t, ExpireInstant, cfg.Disk.Expiration.Mode)
	require.Equal(t, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC), cfg.Disk.Expiration.Instant.UTC())

	require.True(t, cfg.Telemetry.Enabled())
	require.Equal(t, time.Second, cfg.Telemetry.Interval)
}

// TestLoadConfig_MissingFile returns an error for absent paths.
func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

// TestLoadConfig_RequiresDiskName rejects configs without a disk cache name.
func TestLoadConfig_RequiresDiskName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  count_limit: 1\n"), 0o644))

	_, err := LoadConfig(path)
	require.ErrorIs(t, err, ErrDiskNameRequired)
}

// TestAdjustConfig_Defaults fills unlimited limits and default intervals.
func TestAdjustConfig_Defaults(t *testing.T) {
	cfg := &Cache{Disk: &DiskCfg{Name: "x"}}
	cfg.AdjustConfig()

	require.Equal(t, int64(math.MaxInt64), cfg.Memory.CountLimit)
	require.Equal(t, int64(math.MaxInt64), cfg.Memory.CostLimit)
	require.Equal(t, 5*time.Second, cfg.Memory.TrimInterval)
	require.Equal(t, ExpireNever, cfg.Memory.Expiration.Mode)

	require.NotEmpty(t, cfg.Disk.RootDirectory)
	require.Equal(t, StorageMixed, cfg.Disk.StorageMode)
	require.Equal(t, int64(DefaultInlineThresholdBytes), cfg.Disk.InlineThresholdBytes)
	require.Equal(t, int64(0), cfg.Disk.FreeDiskSpaceFloorBytes)
	require.Equal(t, 60*time.Second, cfg.Disk.TrimInterval)
	require.Equal(t, 5*time.Second, cfg.Disk.QueryTimeout)

	require.False(t, cfg.Telemetry.Enabled())
	require.NoError(t, cfg.Validate())

	// idempotent
	cfg.AdjustConfig()
	require.Equal(t, int64(math.MaxInt64), cfg.Memory.CountLimit)
}

// TestAdjustConfig_NegativeLimitsAreUnlimited treats negative limits like zero.
func TestAdjustConfig_NegativeLimitsAreUnlimited(t *testing.T) {
	cfg := &Cache{
		Memory: &MemoryCfg{CountLimit: -1, CostLimit: -10},
		Disk:   &DiskCfg{Name: "x", CountLimit: -5, CostLimit: -1},
	}
	cfg.AdjustConfig()
	require.NoError(t, cfg.Validate())

	require.Equal(t, int64(math.MaxInt64), cfg.Memory.CountLimit)
	require.Equal(t, int64(math.MaxInt64), cfg.Memory.CostLimit)
	require.Equal(t, int64(math.MaxInt64), cfg.Disk.CountLimit)
	require.Equal(t, int64(math.MaxInt64), cfg.Disk.CostLimit)
}

// TestValidate_UnknownStorageMode rejects unsupported storage modes.
func TestValidate_UnknownStorageMode(t *testing.T) {
	cfg := &Cache{Disk: &DiskCfg{Name: "x", StorageMode: "tape"}}
	cfg.AdjustConfig()
	require.Error(t, cfg.Validate())
}

// TestExpiration_AgeLimit covers all three modes.
func TestExpiration_AgeLimit(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	require.Greater(t, Never().AgeLimit(now), 60*365*24*time.Hour)
	require.Greater(t, Expiration{}.AgeLimit(now), 60*365*24*time.Hour)
	require.True(t, Expiration{}.IsNever())

	require.Equal(t, 4*time.Second, Seconds(4).AgeLimit(now))
	require.Equal(t, 1500*time.Millisecond, Seconds(1.5).AgeLimit(now))
	require.Equal(t, time.Duration(0), Seconds(0).AgeLimit(now))

	require.Equal(t, time.Minute, At(now.Add(time.Minute)).AgeLimit(now))
	require.Less(t, At(now.Add(-time.Minute)).AgeLimit(now), time.Duration(0))
}

// TestExpiration_Deadline returns the expiry instant of an entry written now.
func TestExpiration_Deadline(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	instant := now.Add(time.Hour)

	require.Equal(t, now.Add(4*time.Second), Seconds(4).Deadline(now))
	require.Equal(t, instant, At(instant).Deadline(now))
	require.True(t, Never().Deadline(now).After(now.Add(60*365*24*time.Hour)))
}
