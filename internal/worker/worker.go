// Package worker runs the background duties of a single tier on one goroutine:
// a recurring maintenance pass and ad-hoc jobs (deferred trims, async operations).
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrNotResponded = errors.New("worker not responded")

// Target is the owner of a worker. Pass runs one maintenance cycle.
// A worker without a target only runs submitted jobs.
type Target interface {
	Pass()
}

type Worker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	name     string
	interval time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	target   Target
	alive    func() bool
	counters *counters
	jobsCh   chan func()
	invokeCh chan chan struct{}
	doneCh   chan struct{}

	// mu orders submissions against the final drain: a job accepted by Submit always runs.
	mu      sync.RWMutex
	stopped bool
}

// New starts a worker. If interval is not positive, the recurring pass is disabled and
// the worker only runs submitted jobs and forced passes. The alive check is consulted
// before every re-arm: once it reports false the worker stops.
func New(
	ctx context.Context,
	name string,
	interval time.Duration,
	clk clock.Clock,
	logger *slog.Logger,
	target Target,
	alive func() bool,
	queueCap int,
) *Worker {
	if clk == nil {
		clk = clock.New()
	}
	if alive == nil {
		alive = func() bool { return true }
	}
	if queueCap <= 0 {
		queueCap = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	return (&Worker{
		ctx:      ctx,
		cancel:   cancel,
		name:     name,
		interval: interval,
		clock:    clk,
		logger:   logger,
		target:   target,
		alive:    alive,
		counters: newCounters(),
		jobsCh:   make(chan func(), queueCap),
		invokeCh: make(chan chan struct{}),
		doneCh:   make(chan struct{}),
	}).run()
}

// Submit enqueues a job, blocking while the queue is full. Returns false if the worker is stopped.
// An accepted job is executed even if the worker is closed right after.
func (w *Worker) Submit(job func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped || w.ctx.Err() != nil {
		w.counters.dropped.Add(1)
		return false
	}
	select {
	case <-w.ctx.Done():
		w.counters.dropped.Add(1)
		return false
	case w.jobsCh <- job:
		return true
	}
}

// TrySubmit enqueues a job without blocking. Returns false if the queue is full or the worker is stopped.
func (w *Worker) TrySubmit(job func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped || w.ctx.Err() != nil {
		w.counters.dropped.Add(1)
		return false
	}
	select {
	case w.jobsCh <- job:
		return true
	default:
		w.counters.dropped.Add(1)
		return false
	}
}

// ForceCall runs a pass on the worker goroutine and waits for it to complete.
func (w *Worker) ForceCall(timeout time.Duration) error {
	after := time.NewTimer(timeout)
	defer after.Stop()

	done := make(chan struct{})
	select {
	case <-w.ctx.Done():
		return ErrNotResponded
	case w.invokeCh <- done:
	case <-after.C:
		return ErrNotResponded
	}

	select {
	case <-done:
		return nil
	case <-after.C:
		return ErrNotResponded
	}
}

func (w *Worker) Metrics() (passes, jobs, dropped int64) {
	return w.counters.snapshot()
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.doneCh
}

func (w *Worker) Close() error {
	w.cancel()
	return nil
}

func (w *Worker) run() *Worker {
	w.logger.Info("worker is running", "name", w.name, "interval", w.interval.String())

	go func() {
		defer close(w.doneCh)
		defer w.logger.Info("worker is stopped", "name", w.name)
		w.loop()
		w.drain()
	}()

	return w
}

func (w *Worker) loop() {
	var (
		timer  *clock.Timer
		tickCh <-chan time.Time
	)
	if w.interval > 0 {
		timer = w.clock.Timer(w.interval)
		defer timer.Stop()
		tickCh = timer.C
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-tickCh:
			if !w.alive() {
				return
			}
			w.pass()
			if !w.alive() {
				return
			}
			timer.Reset(w.interval)
		case job := <-w.jobsCh:
			w.job(job)
		case done := <-w.invokeCh:
			w.pass()
			close(done)
		}
	}
}

// drain rejects further submissions and runs the jobs already queued.
func (w *Worker) drain() {
	w.cancel()
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	for {
		select {
		case job := <-w.jobsCh:
			w.job(job)
		default:
			return
		}
	}
}

func (w *Worker) pass() {
	defer w.recoverPanic("pass")
	w.counters.passes.Add(1)
	if w.target != nil {
		w.target.Pass()
	}
}

func (w *Worker) job(job func()) {
	defer w.recoverPanic("job")
	w.counters.jobs.Add(1)
	job()
}

func (w *Worker) recoverPanic(what string) {
	if r := recover(); r != nil {
		w.logger.Error("worker "+what+" panicked", "name", w.name, "panic", r)
	}
}
