// Package tiercache composes an in-memory LRU tier and a persistent disk tier behind one API.
// Each call picks the tiers it touches with a Scope. The tiers never call each other:
// a disk hit is returned as is and never copied into memory.
package tiercache

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/Borislavv/go-tier-cache/codec"
	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/disk"
	"github.com/Borislavv/go-tier-cache/internal/telemetry"
	"github.com/Borislavv/go-tier-cache/memory"
	"github.com/Borislavv/go-tier-cache/metrics"
	"github.com/Borislavv/go-tier-cache/metrics/prom"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const defaultNamespace = "tiercache"

var ErrDiskClearFailed = errors.New("disk tier clear failed")

type Cache[V any] struct {
	cfg    *config.Cache
	logger *slog.Logger
	cancel context.CancelFunc

	memory    *memory.Cache[string, V]
	disk      *disk.Cache[V]
	telemeter *telemetry.Logs

	// reads coalesces concurrent disk reads of the same key.
	reads singleflight.Group
}

type diskRead[V any] struct {
	value V
	ok    bool
}

var _ io.Closer = (*Cache[[]byte])(nil)

// New builds both tiers from cfg. The disk tier is stored under cfg.Disk.RootDirectory/cfg.Disk.Name.
func New[V any](ctx context.Context, cfg *config.Cache, c codec.Codec[V], logger *slog.Logger, opts ...Option) (*Cache[V], error) {
	if cfg == nil {
		cfg = &config.Cache{}
	}
	cfg.AdjustConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &options{clock: clock.New(), namespace: defaultNamespace}
	for _, opt := range opts {
		opt(o)
	}

	var (
		memMetrics, diskMetrics metrics.Metrics = metrics.NoopMetrics{}, metrics.NoopMetrics{}
		adapters                []*prom.Adapter
	)
	unregister := func() {
		for _, a := range adapters {
			a.Unregister()
		}
	}
	if o.registerer != nil {
		labels := prometheus.Labels{"cache": cfg.Disk.Name}
		for _, tier := range []struct {
			sub string
			dst *metrics.Metrics
		}{{"memory", &memMetrics}, {"disk", &diskMetrics}} {
			a, err := prom.New(o.registerer, o.namespace, tier.sub, labels)
			if err != nil {
				unregister()
				return nil, err
			}
			adapters = append(adapters, a)
			*tier.dst = a
		}
	}

	ctx, cancel := context.WithCancel(ctx)

	d, err := disk.New[V](ctx, cfg.Disk, c, logger,
		disk.WithClock(o.clock),
		disk.WithMetrics(diskMetrics),
	)
	if err != nil {
		cancel()
		unregister()
		return nil, err
	}

	m := memory.New[string, V](ctx, cfg.Memory, logger,
		memory.WithClock[string, V](o.clock),
		memory.WithMetrics[string, V](memMetrics),
	)

	cache := &Cache[V]{
		cfg:    cfg,
		logger: logger,
		cancel: cancel,
		memory: m,
		disk:   d,
	}
	if cfg.Telemetry.Enabled() {
		cache.telemeter = telemetry.New(ctx, logger, o.clock, cfg.Telemetry.Interval, map[string]telemetry.Source{
			"memory": m,
			"disk":   d,
		})
	}

	logger.Info("tier cache is running", "name", cfg.Disk.Name, "path", d.Path())
	return cache, nil
}

// Get looks the key up in memory first, then on disk. A disk hit does not populate memory.
func (c *Cache[V]) Get(key string, scope Scope) (V, bool) {
	if scope.Memory() {
		if v, ok := c.memory.Get(key); ok {
			return v, true
		}
	}
	if scope.Disk() {
		return c.diskGet(key)
	}
	var zero V
	return zero, false
}

func (c *Cache[V]) diskGet(key string) (V, bool) {
	res, _, _ := c.reads.Do(key, func() (any, error) {
		v, ok := c.disk.Get(key)
		return diskRead[V]{value: v, ok: ok}, nil
	})
	r := res.(diskRead[V])
	return r.value, r.ok
}

func (c *Cache[V]) Contains(key string, scope Scope) bool {
	if scope.Memory() && c.memory.Contains(key) {
		return true
	}
	return scope.Disk() && c.disk.Contains(key)
}

func (c *Cache[V]) Set(key string, value V, scope Scope) {
	if scope.Memory() {
		c.memory.Set(key, value)
	}
	if scope.Disk() && !c.disk.Set(key, value) {
		c.logger.Debug("disk tier rejected value", "key", key)
	}
}

func (c *Cache[V]) Remove(key string, scope Scope) {
	if scope.Memory() {
		c.memory.Remove(key)
	}
	if scope.Disk() {
		c.disk.Remove(key)
	}
}

// RemoveAll clears the selected tiers concurrently.
func (c *Cache[V]) RemoveAll(scope Scope) error {
	var g errgroup.Group
	if scope.Memory() {
		g.Go(func() error {
			c.memory.RemoveAll()
			return nil
		})
	}
	if scope.Disk() {
		g.Go(func() error {
			if !c.disk.RemoveAll() {
				return ErrDiskClearFailed
			}
			return nil
		})
	}
	return g.Wait()
}

// OnLowMemory is called by the embedding application under memory pressure.
// It clears the memory tier if MemoryCfg.ClearOnLowMemory is set.
func (c *Cache[V]) OnLowMemory() {
	if c.cfg.Memory.ClearOnLowMemory {
		c.logger.Info("clearing memory tier on low memory")
		c.memory.RemoveAll()
	}
}

// OnBackground is called by the embedding application when it goes to background.
// It clears the memory tier if MemoryCfg.ClearOnBackground is set.
func (c *Cache[V]) OnBackground() {
	if c.cfg.Memory.ClearOnBackground {
		c.logger.Info("clearing memory tier on background")
		c.memory.RemoveAll()
	}
}

func (c *Cache[V]) Memory() *memory.Cache[string, V] {
	return c.memory
}

func (c *Cache[V]) Disk() *disk.Cache[V] {
	return c.disk
}

// Close stops telemetry and both tiers. It is idempotent.
func (c *Cache[V]) Close() error {
	c.cancel()
	if c.telemeter != nil {
		_ = c.telemeter.Close()
	}

	var g errgroup.Group
	g.Go(c.memory.Close)
	g.Go(c.disk.Close)
	return g.Wait()
}
