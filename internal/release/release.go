// Package release runs deferred, low-priority cleanup off the tiers' critical sections:
// dropping evicted entries, invoking eviction callbacks and purging trash directories.
package release

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Borislavv/go-tier-cache/internal/shared/queue"
)

const defaultQueueCap = 4096

var ErrFlushTimeout = errors.New("release worker flush timed out")

// Worker executes release tasks one by one on a single goroutine.
// When the queue is full the task runs inline on the caller, so Release never drops work.
type Worker struct {
	ctx      context.Context
	logger   *slog.Logger
	q        queue.Queue[func()]
	signalCh chan struct{}

	executed atomic.Int64
	inlined  atomic.Int64
}

var (
	sharedOnce sync.Once
	shared     *Worker
)

// Shared returns the process-wide worker. It lives for the lifetime of the process.
func Shared() *Worker {
	sharedOnce.Do(func() {
		shared = New(context.Background(), defaultQueueCap, slog.Default())
	})
	return shared
}

func New(ctx context.Context, capacity int, logger *slog.Logger) *Worker {
	if capacity <= 0 {
		capacity = defaultQueueCap
	}
	w := &Worker{ctx: ctx, logger: logger, signalCh: make(chan struct{}, 1)}
	w.q.Init(capacity)
	go w.run()
	return w
}

// Release schedules fn. A nil fn is ignored.
func (w *Worker) Release(fn func()) {
	if fn == nil {
		return
	}
	if w.ctx.Err() != nil || !w.q.TryPush(fn) {
		w.inlined.Add(1)
		w.exec(fn)
		return
	}
	select {
	case w.signalCh <- struct{}{}:
	default:
	}
}

// Flush blocks until every task scheduled before the call has been executed.
func (w *Worker) Flush(timeout time.Duration) error {
	done := make(chan struct{})
	marker := func() { close(done) }

	after := time.NewTimer(timeout)
	defer after.Stop()

	if w.ctx.Err() != nil {
		w.exec(marker)
		return nil
	}
	for !w.q.TryPush(marker) {
		select {
		case <-after.C:
			return ErrFlushTimeout
		case <-time.After(time.Millisecond):
		}
	}
	select {
	case w.signalCh <- struct{}{}:
	default:
	}

	select {
	case <-done:
		return nil
	case <-after.C:
		return ErrFlushTimeout
	}
}

// Metrics returns the number of tasks executed by the worker and executed inline by callers.
func (w *Worker) Metrics() (executed, inlined int64) {
	return w.executed.Load(), w.inlined.Load()
}

func (w *Worker) run() {
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case <-w.signalCh:
			w.drain()
		}
	}
}

func (w *Worker) drain() {
	for {
		fn, ok := w.q.TryPop()
		if !ok {
			return
		}
		w.exec(fn)
		w.executed.Add(1)
		// low priority: let foreground goroutines run between tasks
		runtime.Gosched()
	}
}

func (w *Worker) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("release task panicked", "panic", r)
		}
	}()
	fn()
}
