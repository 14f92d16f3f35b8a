package memory

import (
	"time"

	"github.com/Borislavv/go-tier-cache/metrics"
)

const (
	trimBatchSize = 64
	trimBackoff   = 10 * time.Millisecond
)

// Pass runs one recurring trim: cost, count, then age. Called by the tier worker.
func (c *Cache[K, V]) Pass() {
	c.Trim()
}

// Trim enforces every configured limit in order: cost, count, age.
func (c *Cache[K, V]) Trim() {
	c.counters.trimPasses.Add(1)
	c.TrimToCost(c.cfg.CostLimit)
	c.TrimToCount(c.cfg.CountLimit)
	c.TrimToAge(c.cfg.Expiration.AgeLimit(c.clock.Now()))
}

// ForceTrim runs a trim pass on the tier worker and waits for it.
func (c *Cache[K, V]) ForceTrim(timeout time.Duration) error {
	return c.worker.ForceCall(timeout)
}

// TrimToCost evicts least recently used entries until the total cost is within limit.
// A limit <= 0 evicts everything.
func (c *Cache[K, V]) TrimToCost(limit int64) {
	c.trimWhile(metrics.EvictCost, func(lm *linkedMap[K, V], _ *entry[K, V]) bool {
		return limit <= 0 || lm.cost > limit
	})
}

// TrimToCount evicts least recently used entries until at most limit remain.
// A limit <= 0 evicts everything.
func (c *Cache[K, V]) TrimToCount(limit int64) {
	c.trimWhile(metrics.EvictCount, func(lm *linkedMap[K, V], _ *entry[K, V]) bool {
		return limit <= 0 || lm.len() > limit
	})
}

// TrimToAge evicts entries which were not accessed within age. An age <= 0 evicts everything.
func (c *Cache[K, V]) TrimToAge(age time.Duration) {
	if age <= 0 {
		c.trimWhile(metrics.EvictAge, func(*linkedMap[K, V], *entry[K, V]) bool { return true })
		return
	}
	now := c.now()
	c.trimWhile(metrics.EvictAge, func(_ *linkedMap[K, V], tail *entry[K, V]) bool {
		return now-tail.accessed > int64(age)
	})
}

// trimWhile evicts the tail while pred holds. The lock is taken with TryLock and
// released after every batch so foreground calls are not starved.
func (c *Cache[K, V]) trimWhile(reason metrics.EvictReason, pred func(lm *linkedMap[K, V], tail *entry[K, V]) bool) {
	for {
		if !c.mu.TryLock() {
			select {
			case <-time.After(trimBackoff):
				continue
			case <-c.ctx.Done():
				// closing: take the lock and finish this trim
				c.mu.Lock()
			}
		}

		evicted := make([]entry[K, V], 0, 8)
		more := false
		for {
			tail, ok := c.lm.oldest()
			if !ok || !pred(c.lm, tail) {
				break
			}
			if len(evicted) == trimBatchSize {
				more = true
				break
			}
			evicted = append(evicted, c.lm.remove(c.lm.tail))
		}
		count, total := c.lm.len(), c.lm.cost
		c.mu.Unlock()

		if len(evicted) > 0 {
			c.release(evicted, reason)
			c.metrics.Size(count, total)
		}
		if !more {
			return
		}
	}
}
