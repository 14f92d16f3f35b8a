package memory

import (
	"reflect"
	"unsafe"

	"github.com/Borislavv/go-tier-cache/internal/release"
	"github.com/Borislavv/go-tier-cache/metrics"
	"github.com/benbjohnson/clock"
)

type Option[K comparable, V any] func(c *Cache[K, V])

// WithCost sets the function assigning a byte weight to a value on Set.
func WithCost[K comparable, V any](fn func(V) int64) Option[K, V] {
	return func(c *Cache[K, V]) {
		if fn != nil {
			c.costFn = fn
		}
	}
}

// WithOnEvict registers a callback invoked for every entry evicted by a trim or dropped by RemoveAll.
// It runs on the release worker, never under the tier lock.
func WithOnEvict[K comparable, V any](fn func(key K, value V, reason metrics.EvictReason)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvict = fn }
}

func WithMetrics[K comparable, V any](m metrics.Metrics) Option[K, V] {
	return func(c *Cache[K, V]) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithClock[K comparable, V any](clk clock.Clock) Option[K, V] {
	return func(c *Cache[K, V]) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithReleaser replaces the process-wide release worker.
func WithReleaser[K comparable, V any](w *release.Worker) Option[K, V] {
	return func(c *Cache[K, V]) {
		if w != nil {
			c.releaser = w
		}
	}
}

// defaultCost weighs byte slices and strings by length and anything else by its shallow size.
func defaultCost[V any](v V) int64 {
	switch tv := any(v).(type) {
	case []byte:
		return int64(len(tv))
	case string:
		return int64(len(tv))
	}
	if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.Slice {
		return int64(rv.Len()) * int64(rv.Type().Elem().Size())
	}
	return int64(unsafe.Sizeof(v))
}
