// Package memory implements the in-memory tier: an LRU index over an arena of entries
// with count, cost and age limits enforced inline and by a recurring background trim.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Borislavv/go-tier-cache/config"
	"github.com/Borislavv/go-tier-cache/internal/release"
	"github.com/Borislavv/go-tier-cache/internal/worker"
	"github.com/Borislavv/go-tier-cache/metrics"
	"github.com/benbjohnson/clock"
)

const costTrimQueueCap = 4

type Cache[K comparable, V any] struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.MemoryCfg
	logger *slog.Logger

	clock    clock.Clock
	metrics  metrics.Metrics
	releaser *release.Worker
	costFn   func(V) int64
	onEvict  func(K, V, metrics.EvictReason)

	mu sync.Mutex
	lm *linkedMap[K, V]

	worker          *worker.Worker
	costTrimPending atomic.Bool
	closed          atomic.Bool
	counters        *counters
}

// New creates a memory tier and starts its trim worker. A nil cfg means no limits.
func New[K comparable, V any](ctx context.Context, cfg *config.MemoryCfg, logger *slog.Logger, opts ...Option[K, V]) *Cache[K, V] {
	if cfg == nil {
		cfg = &config.MemoryCfg{}
	}
	cfg.AdjustConfig()
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Cache[K, V]{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		clock:    clock.New(),
		metrics:  metrics.NoopMetrics{},
		costFn:   defaultCost[V],
		lm:       newLinkedMap[K, V](),
		counters: newCounters(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.releaser == nil {
		c.releaser = release.Shared()
	}

	c.worker = worker.New(ctx, "memory", cfg.TrimInterval, c.clock, logger, c, c.alive, costTrimQueueCap)
	return c
}

func (c *Cache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	h, found := c.lm.lookup(key)
	if found {
		c.lm.touch(h, c.now())
		value = c.lm.at(h).value
	}
	c.mu.Unlock()

	if found {
		c.counters.hits.Add(1)
		c.metrics.Hit()
	} else {
		c.counters.misses.Add(1)
		c.metrics.Miss()
	}
	return value, found
}

// Contains reports presence without touching recency.
func (c *Cache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	_, ok := c.lm.lookup(key)
	c.mu.Unlock()
	return ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithCost(key, value, c.costFn(value))
}

// SetWithCost stores value with an explicit cost. Exceeding the count limit evicts
// the least recently used entry immediately; exceeding the cost limit schedules
// a cost trim on the tier worker.
func (c *Cache[K, V]) SetWithCost(key K, value V, cost int64) {
	if cost < 0 {
		cost = 0
	}

	var evicted []entry[K, V]

	c.mu.Lock()
	now := c.now()
	if h, ok := c.lm.lookup(key); ok {
		c.lm.update(h, value, cost, now)
	} else {
		c.lm.insert(key, value, cost, now)
	}
	for c.lm.len() > c.cfg.CountLimit && c.lm.tail != nilHandle {
		evicted = append(evicted, c.lm.remove(c.lm.tail))
	}
	count, total := c.lm.len(), c.lm.cost
	c.mu.Unlock()

	c.release(evicted, metrics.EvictCount)
	c.metrics.Size(count, total)

	if total > c.cfg.CostLimit {
		c.scheduleCostTrim()
	}
}

func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	h, ok := c.lm.lookup(key)
	if !ok {
		c.mu.Unlock()
		return
	}
	c.lm.remove(h)
	count, total := c.lm.len(), c.lm.cost
	c.mu.Unlock()

	c.metrics.Size(count, total)
}

// RemoveAll drops every entry. The old arena is handed over to the release worker as a whole.
func (c *Cache[K, V]) RemoveAll() {
	c.mu.Lock()
	old := c.lm
	c.lm = newLinkedMap[K, V]()
	c.mu.Unlock()

	n, cost := old.len(), old.cost
	if n == 0 {
		return
	}
	c.counters.evicted.Add(n)
	c.counters.evictedCost.Add(cost)
	c.metrics.Evict(metrics.EvictClear, int(n))
	c.metrics.Size(0, 0)

	onEvict := c.onEvict
	c.releaser.Release(func() {
		if onEvict != nil {
			old.each(func(e *entry[K, V]) { onEvict(e.key, e.value, metrics.EvictClear) })
		}
		old = nil
	})
}

func (c *Cache[K, V]) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lm.len()
}

func (c *Cache[K, V]) TotalCost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lm.cost
}

// Keys returns a snapshot of keys ordered from the most to the least recently used.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lm.keys()
}

func (c *Cache[K, V]) Stats() metrics.Stats {
	c.mu.Lock()
	count, cost := c.lm.len(), c.lm.cost
	c.mu.Unlock()

	hits, misses, evicted, evictedCost, passes := c.counters.snapshot()
	return metrics.Stats{
		Count:       count,
		Cost:        cost,
		Hits:        hits,
		Misses:      misses,
		Evicted:     evicted,
		EvictedCost: evictedCost,
		TrimPasses:  passes,
	}
}

// Close stops the trim worker and drops every entry. Trims already running complete.
func (c *Cache[K, V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()
	_ = c.worker.Close()
	c.RemoveAll()
	c.logger.Info("memory cache is closed")
	return nil
}

func (c *Cache[K, V]) alive() bool {
	return !c.closed.Load() && c.ctx.Err() == nil
}

func (c *Cache[K, V]) now() int64 {
	return c.clock.Now().UnixNano()
}

func (c *Cache[K, V]) scheduleCostTrim() {
	if !c.costTrimPending.CompareAndSwap(false, true) {
		return
	}
	if !c.worker.TrySubmit(func() {
		c.costTrimPending.Store(false)
		c.TrimToCost(c.cfg.CostLimit)
	}) {
		c.costTrimPending.Store(false)
	}
}

// release hands evicted entries to the release worker, which invokes the eviction callback.
func (c *Cache[K, V]) release(evicted []entry[K, V], reason metrics.EvictReason) {
	if len(evicted) == 0 {
		return
	}
	var cost int64
	for i := range evicted {
		cost += evicted[i].cost
	}
	c.counters.evicted.Add(int64(len(evicted)))
	c.counters.evictedCost.Add(cost)
	c.metrics.Evict(reason, len(evicted))

	onEvict := c.onEvict
	c.releaser.Release(func() {
		if onEvict != nil {
			for i := range evicted {
				onEvict(evicted[i].key, evicted[i].value, reason)
			}
		}
		evicted = nil
	})
}
