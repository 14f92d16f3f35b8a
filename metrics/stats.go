package metrics

// Stats is a point-in-time view of a tier. Every field but Count and Cost is cumulative
// since the tier was created.
type Stats struct {
	Count       int64
	Cost        int64
	Hits        int64
	Misses      int64
	Evicted     int64
	EvictedCost int64
	TrimPasses  int64
	// Healed counts manifest rows dropped because their content file was gone (disk tier only).
	Healed int64
}
