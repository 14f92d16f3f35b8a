package disk

import (
	"math"
	"time"

	"github.com/Borislavv/go-tier-cache/metrics"
)

const trimBatchSize = 16

// Pass runs one recurring trim. Called by the trim worker.
func (c *Cache[V]) Pass() {
	c.Trim()
}

// Trim enforces every configured limit in order: cost, count, age, free disk space.
func (c *Cache[V]) Trim() {
	c.counters.trimPasses.Add(1)
	c.TrimToCost(c.cfg.CostLimit)
	c.TrimToCount(c.cfg.CountLimit)
	c.TrimToAge(c.cfg.Expiration.AgeLimit(c.clock.Now()))
	c.TrimToFreeDiskSpace(c.cfg.FreeDiskSpaceFloorBytes)

	if c.alive() {
		c.metrics.Size(c.TotalCount(), c.TotalCost())
	}
}

// ForceTrim runs a trim pass on the trim worker and waits for it.
func (c *Cache[V]) ForceTrim(timeout time.Duration) error {
	return c.trimmer.ForceCall(timeout)
}

// TrimToCost removes the least recently accessed records until their total size is within limit.
// A limit <= 0 clears the tier.
func (c *Cache[V]) TrimToCost(limit int64) bool {
	return c.trimTo(limit, metrics.EvictCost, func(r row) int64 { return r.size }, (*storage).dbSize)
}

// TrimToCount removes the least recently accessed records until at most limit remain.
// A limit <= 0 clears the tier.
func (c *Cache[V]) TrimToCount(limit int64) bool {
	return c.trimTo(limit, metrics.EvictCount, func(row) int64 { return 1 }, (*storage).dbCount)
}

// trimTo deletes records in batches of trimBatchSize ordered by access time, taking
// the lock once per batch, until total(storage) <= limit or a deletion fails.
func (c *Cache[V]) trimTo(limit int64, reason metrics.EvictReason, weight func(row) int64, total func(*storage) (int64, error)) bool {
	if limit == math.MaxInt64 {
		return true
	}
	if limit <= 0 {
		if !c.lock() {
			return false
		}
		defer c.unlock()
		return c.clearLocked(reason)
	}

	for {
		if !c.lock() {
			return false
		}
		done, ok := c.trimBatchLocked(limit, reason, weight, total)
		c.unlock()
		if done || !ok {
			return ok
		}
	}
}

func (c *Cache[V]) trimBatchLocked(limit int64, reason metrics.EvictReason, weight func(row) int64, total func(*storage) (int64, error)) (done, ok bool) {
	left, err := total(c.storage)
	if err != nil {
		return true, false
	}
	if left <= limit {
		return true, true
	}

	rows, err := c.storage.dbOldest(trimBatchSize)
	if err != nil {
		return true, false
	}
	if len(rows) == 0 {
		return true, true
	}

	var n, cost int64
	defer func() {
		if n > 0 {
			c.counters.evicted.Add(n)
			c.counters.evictedCost.Add(cost)
			c.metrics.Evict(reason, int(n))
			c.storage.dbCheckpoint()
		}
	}()

	for _, r := range rows {
		if r.filename.Valid {
			if err = c.storage.deleteFile(r.filename.String); err != nil {
				c.logger.Warn("disk cache trim failed", "key", r.key, "err", err)
				return true, false
			}
		}
		if err = c.storage.dbDelete(r.key); err != nil {
			c.logger.Warn("disk cache trim failed", "key", r.key, "err", err)
			return true, false
		}
		n++
		cost += r.size
		left -= weight(r)
		if left <= limit {
			return true, true
		}
	}
	return false, true
}

// TrimToAge removes records which were not accessed within age. An age <= 0 clears the tier.
func (c *Cache[V]) TrimToAge(age time.Duration) bool {
	if age <= 0 {
		if !c.lock() {
			return false
		}
		defer c.unlock()
		return c.clearLocked(metrics.EvictAge)
	}
	return c.removeOlderThan(c.clock.Now().Add(-age), metrics.EvictAge)
}

// RemoveOlderThan removes records last accessed before t. A t at or before the unix epoch is a no-op.
func (c *Cache[V]) RemoveOlderThan(t time.Time) bool {
	return c.removeOlderThan(t, metrics.EvictAge)
}

func (c *Cache[V]) removeOlderThan(t time.Time, reason metrics.EvictReason) bool {
	if t.Unix() <= 0 {
		return true
	}
	return c.removeWhere("access_time < ?", t.Unix(), reason)
}

// RemoveLargerThan removes records whose size exceeds size. A size <= 0 clears the tier.
func (c *Cache[V]) RemoveLargerThan(size int64) bool {
	if size == math.MaxInt64 {
		return true
	}
	if size <= 0 {
		return c.RemoveAll()
	}
	return c.removeWhere("size > ?", size, metrics.EvictCost)
}

func (c *Cache[V]) removeWhere(where string, arg any, reason metrics.EvictReason) bool {
	if !c.lock() {
		return false
	}
	n, size, err := c.storage.removeWhere(where, arg)
	c.unlock()

	if err != nil {
		c.logger.Warn("disk cache bulk remove failed", "where", where, "err", err)
		return false
	}
	if n > 0 {
		c.counters.evicted.Add(n)
		c.counters.evictedCost.Add(size)
		c.metrics.Evict(reason, int(n))
	}
	return true
}

// TrimToFreeDiskSpace removes the least recently accessed records until the volume holding the
// cache has at least floor bytes free or the tier is empty. A floor <= 0 disables it.
func (c *Cache[V]) TrimToFreeDiskSpace(floor int64) bool {
	if floor <= 0 {
		return true
	}
	free, err := freeDiskSpace(c.storage.path)
	if err != nil {
		c.logger.Warn("disk cache free space check failed", "path", c.storage.path, "err", err)
		return false
	}
	deficit := floor - free
	if deficit <= 0 {
		return true
	}

	total := c.TotalCost()
	if total < 0 {
		return false
	}
	return c.trimTo(max(total-deficit, 0), metrics.EvictFreeSpace, func(r row) int64 { return r.size }, (*storage).dbSize)
}
