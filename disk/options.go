package disk

import (
	"github.com/Borislavv/go-tier-cache/internal/release"
	"github.com/Borislavv/go-tier-cache/metrics"
	"github.com/benbjohnson/clock"
)

type options struct {
	clock    clock.Clock
	metrics  metrics.Metrics
	releaser *release.Worker
}

type Option func(o *options)

func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		if clk != nil {
			o.clock = clk
		}
	}
}

func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithReleaser replaces the process-wide release worker used for trash purge.
func WithReleaser(w *release.Worker) Option {
	return func(o *options) {
		if w != nil {
			o.releaser = w
		}
	}
}
