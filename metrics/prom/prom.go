// Package prom exports tier metrics to Prometheus.
package prom

import (
	"errors"
	"fmt"

	"github.com/Borislavv/go-tier-cache/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements metrics.Metrics on top of Prometheus collectors.
//
// Collectors already present in the registerer under the same descriptor are reused,
// so two caches with the same name and namespace feed the same series.
type Adapter struct {
	reg   prometheus.Registerer
	owned []prometheus.Collector

	hits     prometheus.Counter
	misses   prometheus.Counter
	evicts   *prometheus.CounterVec
	entries  prometheus.Gauge
	costSize prometheus.Gauge
}

// New registers the collectors of one tier (subsystem sub) under namespace ns.
// A nil reg means prometheus.DefaultRegisterer. A descriptor conflicting with an
// existing collector is returned as an error.
func New(reg prometheus.Registerer, ns, sub string, labels prometheus.Labels) (*Adapter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: labels}
	}

	a := &Adapter{reg: reg}
	var err error
	if a.hits, err = register(a, prometheus.NewCounter(opts("hits_total", "Lookups answered by the tier"))); err != nil {
		return nil, err
	}
	if a.misses, err = register(a, prometheus.NewCounter(opts("misses_total", "Lookups the tier could not answer"))); err != nil {
		return nil, err
	}
	evicts := prometheus.NewCounterVec(opts("evictions_total", "Entries dropped by trims and clears, by reason"), []string{"reason"})
	if a.evicts, err = register(a, evicts); err != nil {
		return nil, err
	}
	if a.entries, err = register(a, prometheus.NewGauge(prometheus.GaugeOpts(opts("size_entries", "Entries held by the tier")))); err != nil {
		return nil, err
	}
	if a.costSize, err = register(a, prometheus.NewGauge(prometheus.GaugeOpts(opts("size_cost", "Total cost of the entries held by the tier, in bytes")))); err != nil {
		return nil, err
	}
	return a, nil
}

// register adds c to the adapter's registerer, falling back to an equal collector
// registered earlier. On failure everything registered so far by a is rolled back.
func register[C prometheus.Collector](a *Adapter, c C) (C, error) {
	err := a.reg.Register(c)
	if err == nil {
		a.owned = append(a.owned, c)
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	a.Unregister()
	var zero C
	return zero, fmt.Errorf("register prometheus collector: %w", err)
}

// Unregister removes the collectors this adapter added. Reused collectors stay registered.
func (a *Adapter) Unregister() {
	for _, c := range a.owned {
		a.reg.Unregister(c)
	}
	a.owned = nil
}

func (a *Adapter) Hit()  { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

func (a *Adapter) Evict(r metrics.EvictReason, n int) {
	if n > 0 {
		a.evicts.WithLabelValues(r.String()).Add(float64(n))
	}
}

func (a *Adapter) Size(entries, cost int64) {
	a.entries.Set(float64(entries))
	a.costSize.Set(float64(cost))
}

var _ metrics.Metrics = (*Adapter)(nil)
