// Package telemetry periodically logs per-interval stats of the cache tiers.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/Borislavv/go-tier-cache/internal/shared/bytes"
	"github.com/benbjohnson/clock"
)

type Logs struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	clock    clock.Clock
	interval time.Duration
	tiers    map[string]Source
	doneCh   chan struct{}
}

// New starts logging stats of every tier once per interval. A non-positive interval disables it.
func New(ctx context.Context, logger *slog.Logger, clk clock.Clock, interval time.Duration, tiers map[string]Source) *Logs {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(ctx)
	return (&Logs{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		clock:    clk,
		interval: interval,
		tiers:    tiers,
		doneCh:   make(chan struct{}),
	}).run()
}

func (l *Logs) Interval() time.Duration {
	return l.interval
}

func (l *Logs) Close() error {
	l.cancel()
	<-l.doneCh
	return nil
}

func (l *Logs) run() *Logs {
	if l.interval <= 0 || len(l.tiers) == 0 {
		close(l.doneCh)
		return l
	}
	go func() {
		defer close(l.doneCh)
		l.loop()
	}()
	return l
}

func (l *Logs) loop() {
	ticker := l.clock.Ticker(l.interval)
	defer ticker.Stop()

	samplers := make(map[string]sampler, len(l.tiers))
	prev := make(map[string]snapshot, len(l.tiers))
	for name, src := range l.tiers {
		samplers[name] = newSampler(src)
		prev[name] = samplers[name].snapshot()
	}

	for {
		select {
		case <-l.ctx.Done():
			return

		case <-ticker.C:
			for name, s := range samplers {
				cur := s.snapshot()
				d := deltaSnapshot(prev[name], cur)
				prev[name] = cur

				l.logger.Info(name+"_tier",
					"interval", l.interval.String(),
					"entries", d.count,
					"size", bytes.FmtCost(d.cost),
					"hits", int64(d.hits),
					"misses", int64(d.misses),
					"hit_ratio", ratio(d.hits, d.misses),
					"evicted_items", int64(d.evicted),
					"evicted_bytes", bytes.FmtMem(d.evictedCost),
					"trim_passes", int64(d.trimPasses),
					"healed_rows", int64(d.healed),
				)
			}
		}
	}
}

func ratio(hits, misses uint64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
