// Package disk implements the persistent tier: a SQLite manifest for metadata and small
// payloads plus a data directory of content files for large ones.
package disk

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/Borislavv/go-tier-cache/codec"
	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/release"
	"github.com/Borislavv/go-tier-cache/internal/worker"
	"github.com/Borislavv/go-tier-cache/metrics"
	"github.com/benbjohnson/clock"
	"golang.org/x/sync/semaphore"
)

const ioQueueCap = 256

type Cache[V any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.DiskCfg
	logger *slog.Logger

	codec   codec.Codec[V]
	clock   clock.Clock
	metrics metrics.Metrics

	// sem serializes every storage call, file I/O included.
	sem     *semaphore.Weighted
	storage *storage

	trimmer  *worker.Worker
	io       *worker.Worker
	closed   atomic.Bool
	counters *counters
}

// New opens (or creates) the cache directory <RootDirectory>/<Name> and starts the tier workers.
// Only a failure to create the directories is returned as an error; a broken manifest
// leaves the tier degraded.
func New[V any](ctx context.Context, cfg *config.DiskCfg, c codec.Codec[V], logger *slog.Logger, opts ...Option) (*Cache[V], error) {
	if cfg == nil || cfg.Name == "" {
		return nil, config.ErrDiskNameRequired
	}
	cfg.AdjustConfig()
	if logger == nil {
		logger = slog.Default()
	}

	o := &options{clock: clock.New(), metrics: metrics.NoopMetrics{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.releaser == nil {
		o.releaser = release.Shared()
	}

	s, err := newStorage(cfg, o.clock, o.releaser)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	cache := &Cache[V]{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		codec:    c,
		clock:    o.clock,
		metrics:  o.metrics,
		sem:      semaphore.NewWeighted(1),
		storage:  s,
		counters: newCounters(),
	}
	cache.trimmer = worker.New(ctx, "disk:"+cfg.Name, cfg.TrimInterval, o.clock, logger, cache, cache.alive, 1)
	cache.io = worker.New(ctx, "disk-io:"+cfg.Name, 0, o.clock, logger, nil, cache.alive, ioQueueCap)

	logger.Info("disk cache is opened", "path", s.path, "mode", string(cfg.StorageMode))
	return cache, nil
}

// lock fails once the tier is closed.
func (c *Cache[V]) lock() bool {
	if c.ctx.Err() != nil {
		return false
	}
	return c.sem.Acquire(c.ctx, 1) == nil
}

func (c *Cache[V]) unlock() {
	c.sem.Release(1)
}

func (c *Cache[V]) Get(key string) (value V, ok bool) {
	if key == "" || !c.lock() {
		return value, false
	}
	data, found, err := c.storage.load(key)
	c.unlock()

	if errors.Is(err, errStaleRow) {
		c.counters.healed.Add(1)
	}
	if err != nil {
		c.logger.Warn("disk cache read failed", "key", key, "err", err)
	}
	if found {
		value, ok = c.codec.Decode(data)
	}
	if ok {
		c.counters.hits.Add(1)
		c.metrics.Hit()
	} else {
		c.counters.misses.Add(1)
		c.metrics.Miss()
	}
	return value, ok
}

func (c *Cache[V]) Contains(key string) bool {
	if key == "" || !c.lock() {
		return false
	}
	ok, err := c.storage.dbContains(key)
	c.unlock()

	if err != nil {
		c.logger.Warn("disk cache lookup failed", "key", key, "err", err)
	}
	return ok
}

func (c *Cache[V]) Set(key string, value V) bool {
	return c.SetWithMetadata(key, value, nil)
}

// SetWithMetadata stores value along with opaque extended metadata kept in the row.
func (c *Cache[V]) SetWithMetadata(key string, value V, meta []byte) bool {
	if key == "" {
		return false
	}
	data, ok := c.codec.Encode(value)
	if !ok {
		return false
	}
	if !c.lock() {
		return false
	}
	err := c.storage.save(key, data, meta)
	c.unlock()

	if err != nil {
		c.logger.Warn("disk cache write failed", "key", key, "err", err)
		return false
	}
	return true
}

// Info returns the row of key without its inline payload.
func (c *Cache[V]) Info(key string) (Record, bool) {
	if key == "" || !c.lock() {
		return Record{}, false
	}
	r, ok, err := c.storage.dbGet(key, false)
	c.unlock()

	if err != nil {
		c.logger.Warn("disk cache lookup failed", "key", key, "err", err)
		return Record{}, false
	}
	if !ok {
		return Record{}, false
	}
	return r.record(), true
}

func (c *Cache[V]) Remove(key string) bool {
	if key == "" || !c.lock() {
		return false
	}
	err := c.storage.remove(key)
	c.unlock()

	if err != nil {
		c.logger.Warn("disk cache remove failed", "key", key, "err", err)
		return false
	}
	return true
}

// RemoveAll drops every record: the manifest is recreated and data/ is moved to trash.
func (c *Cache[V]) RemoveAll() bool {
	if !c.lock() {
		return false
	}
	defer c.unlock()
	return c.clearLocked(metrics.EvictClear)
}

func (c *Cache[V]) clearLocked(reason metrics.EvictReason) bool {
	n, _ := c.storage.dbCount()
	size, _ := c.storage.dbSize()

	if err := c.storage.clear(); err != nil {
		c.logger.Error("disk cache clear failed", "path", c.storage.path, "err", err)
		return false
	}
	if n > 0 {
		c.counters.evicted.Add(n)
		c.counters.evictedCost.Add(max(size, 0))
		c.metrics.Evict(reason, int(n))
	}
	c.metrics.Size(0, 0)
	return true
}

// GetMany returns the decoded values of every present key. Missing keys are omitted.
func (c *Cache[V]) GetMany(keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	keys = nonEmpty(keys)
	if len(keys) == 0 || !c.lock() {
		return out
	}
	raw, healed, err := c.storage.loadMany(keys)
	c.unlock()

	if err != nil {
		c.logger.Warn("disk cache batch read failed", "keys", len(keys), "err", err)
	}
	if healed > 0 {
		c.counters.healed.Add(int64(healed))
	}
	for k, data := range raw {
		if v, ok := c.codec.Decode(data); ok {
			out[k] = v
		}
	}
	return out
}

func (c *Cache[V]) RemoveMany(keys []string) bool {
	keys = nonEmpty(keys)
	if len(keys) == 0 {
		return true
	}
	if !c.lock() {
		return false
	}
	err := c.storage.removeMany(keys)
	c.unlock()

	if err != nil {
		c.logger.Warn("disk cache batch remove failed", "keys", len(keys), "err", err)
		return false
	}
	return true
}

// TotalCount returns the number of records or -1 if the manifest is unavailable.
func (c *Cache[V]) TotalCount() int64 {
	if !c.lock() {
		return -1
	}
	n, err := c.storage.dbCount()
	c.unlock()
	if err != nil {
		return -1
	}
	return n
}

// TotalCost returns the total size of all records in bytes or -1 if the manifest is unavailable.
func (c *Cache[V]) TotalCost() int64 {
	if !c.lock() {
		return -1
	}
	n, err := c.storage.dbSize()
	c.unlock()
	if err != nil {
		return -1
	}
	return n
}

// Path returns the cache directory.
func (c *Cache[V]) Path() string {
	return c.storage.path
}

func (c *Cache[V]) Stats() metrics.Stats {
	hits, misses, evicted, evictedCost, passes, healed := c.counters.snapshot()
	return metrics.Stats{
		Count:       c.TotalCount(),
		Cost:        c.TotalCost(),
		Hits:        hits,
		Misses:      misses,
		Evicted:     evicted,
		EvictedCost: evictedCost,
		TrimPasses:  passes,
		Healed:      healed,
	}
}

// Close stops the tier workers, waits for the storage call in flight and closes the manifest.
func (c *Cache[V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	_ = c.trimmer.Close()
	_ = c.io.Close()

	if err := c.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	c.logger.Info("disk cache is closed", "path", c.storage.path)
	return c.storage.close()
}

func (c *Cache[V]) alive() bool {
	return !c.closed.Load() && c.ctx.Err() == nil
}

func nonEmpty(keys []string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
