package telemetry

import "github.com/Borislavv/go-tier-cache/metrics"

// Source is a tier reporting its stats.
type Source interface {
	Stats() metrics.Stats
}

type sampler struct {
	source Source
}

func newSampler(s Source) sampler {
	return sampler{source: s}
}

// snapshot holds cumulative counters (monotonic) and the current size.
type snapshot struct {
	count int64
	cost  int64

	hits        uint64
	misses      uint64
	evicted     uint64
	evictedCost uint64
	trimPasses  uint64
	healed      uint64
}

func (s sampler) snapshot() snapshot {
	st := s.source.Stats()
	return snapshot{
		count: st.Count,
		cost:  st.Cost,

		hits:        uint64(max(st.Hits, 0)),
		misses:      uint64(max(st.Misses, 0)),
		evicted:     uint64(max(st.Evicted, 0)),
		evictedCost: uint64(max(st.EvictedCost, 0)),
		trimPasses:  uint64(max(st.TrimPasses, 0)),
		healed:      uint64(max(st.Healed, 0)),
	}
}

// deltaSnapshot converts cumulative snapshots to per-interval deltas.
// If counters reset (cur < prev), it treats cur as the delta. Sizes are taken from cur as is.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		count: cur.count,
		cost:  cur.cost,

		hits:        delta(prev.hits, cur.hits),
		misses:      delta(prev.misses, cur.misses),
		evicted:     delta(prev.evicted, cur.evicted),
		evictedCost: delta(prev.evictedCost, cur.evictedCost),
		trimPasses:  delta(prev.trimPasses, cur.trimPasses),
		healed:      delta(prev.healed, cur.healed),
	}
}

func delta(prev, cur uint64) uint64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}
