package memory

import "sync/atomic"

type counters struct {
	hits        atomic.Int64
	misses      atomic.Int64
	evicted     atomic.Int64
	evictedCost atomic.Int64
	trimPasses  atomic.Int64
}

func newCounters() *counters {
	return &counters{}
}

func (c *counters) snapshot() (hits, misses, evicted, evictedCost, trimPasses int64) {
	return c.hits.Load(), c.misses.Load(), c.evicted.Load(), c.evictedCost.Load(), c.trimPasses.Load()
}
