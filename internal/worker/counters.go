package worker

import "sync/atomic"

type counters struct {
	passes  atomic.Int64
	jobs    atomic.Int64
	dropped atomic.Int64
}

func newCounters() *counters {
	return &counters{
		passes:  atomic.Int64{},
		jobs:    atomic.Int64{},
		dropped: atomic.Int64{},
	}
}

func (c *counters) snapshot() (passes, jobs, dropped int64) {
	return c.passes.Load(), c.jobs.Load(), c.dropped.Load()
}
