package tiercache

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

type options struct {
	registerer prometheus.Registerer
	clock      clock.Clock
	namespace  string
}

type Option func(o *options)

// WithRegisterer exports metrics of both tiers to reg under the "tiercache" namespace,
// one subsystem per tier.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithNamespace overrides the Prometheus namespace used with WithRegisterer.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		if clk != nil {
			o.clock = clk
		}
	}
}
