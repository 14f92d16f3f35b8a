// Package metrics defines the observability hooks both tiers report to.
package metrics

// EvictReason explains why an entry left a tier without an explicit Remove.
type EvictReason int

const (
	// EvictCount removed to satisfy the count limit.
	EvictCount EvictReason = iota
	// EvictCost removed to satisfy the cost limit.
	EvictCost
	// EvictAge removed because it was idle longer than the age limit.
	EvictAge
	// EvictFreeSpace removed to keep the free disk space floor.
	EvictFreeSpace
	// EvictClear dropped by RemoveAll or a storage reset.
	EvictClear
)

func (r EvictReason) String() string {
	switch r {
	case EvictCount:
		return "count"
	case EvictCost:
		return "cost"
	case EvictAge:
		return "age"
	case EvictFreeSpace:
		return "free_space"
	default:
		return "clear"
	}
}

// Metrics exposes tier-level observability hooks.
// Implementations must be safe for concurrent use; tiers call them outside their locks when possible.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason, n int)
	Size(entries int64, cost int64)
}

// NoopMetrics is the default Metrics implementation and does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                          {}
func (NoopMetrics) Miss()                         {}
func (NoopMetrics) Evict(EvictReason, int)        {}
func (NoopMetrics) Size(entries int64, cost int64) {}

var _ Metrics = NoopMetrics{}
