package testhelp

import (
	"testing"
	"time"

	"github.com/Borislavv/go-tier-cache/config"
)

// Cfg returns an adjusted config whose disk tier lives in a temp dir of t.
// Recurring trims are pushed far out so tests drive them explicitly.
func Cfg(t testing.TB) *config.Cache {
	t.Helper()
	c := &config.Cache{
		Memory: &config.MemoryCfg{
			TrimInterval: time.Hour,
		},
		Disk: &config.DiskCfg{
			Name:                 "test",
			RootDirectory:        t.TempDir(),
			InlineThresholdBytes: 16,
			TrimInterval:         time.Hour,
		},
	}
	c.AdjustConfig()
	return c
}

// CountLimitedCfg limits both tiers to n entries.
func CountLimitedCfg(t testing.TB, n int64) *config.Cache {
	c := Cfg(t)
	c.Memory.CountLimit = n
	c.Disk.CountLimit = n
	return c
}

// ExpiringCfg expires entries of both tiers after seconds of idleness.
func ExpiringCfg(t testing.TB, seconds float64) *config.Cache {
	c := Cfg(t)
	c.Memory.Expiration = config.Seconds(seconds)
	c.Disk.Expiration = config.Seconds(seconds)
	return c
}
