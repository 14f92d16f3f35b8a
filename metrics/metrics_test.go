package metrics

import (
	"github.com/stretchr/testify/require"
	"testing"
)

// TestEvictReason_String returns stable label values.
func TestEvictReason_String(t *testing.T) {
	require.Equal(t, "count", EvictCount.String())
	require.Equal(t, "cost", EvictCost.String())
	require.Equal(t, "age", EvictAge.String())
	require.Equal(t, "free_space", EvictFreeSpace.String())
	require.Equal(t, "clear", EvictClear.String())
}

// TestNoopMetrics_DoesNothing does not panic.
func TestNoopMetrics_DoesNothing(t *testing.T) {
	var m Metrics = NoopMetrics{}
	m.Hit()
	m.Miss()
	m.Evict(EvictCount, 10)
	m.Size(1, 1)
}
