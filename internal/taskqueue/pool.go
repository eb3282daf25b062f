// Package taskqueue runs independent tasks on a bounded number of goroutines.
package taskqueue

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers keeps concurrent provider calls under Gmail's per-user limits.
const DefaultWorkers = 3

// Task is one unit of work. Its error is reported to OnError and never cancels siblings.
type Task func(ctx context.Context) error

// Pool is a bounded worker pool. The zero value is not usable; call New.
type Pool struct {
	ctx   context.Context
	group *errgroup.Group

	queued atomic.Int64
	done   atomic.Int64
	failed atomic.Int64

	mu      sync.Mutex
	onDone  func(done, queued int64)
	onError func(err error)
}

// New returns a pool that runs at most workers tasks at a time.
func New(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g := &errgroup.Group{}
	g.SetLimit(workers)
	return &Pool{ctx: ctx, group: g}
}

// OnDone registers a progress callback invoked after every task.
func (p *Pool) OnDone(fn func(done, queued int64)) {
	p.mu.Lock()
	p.onDone = fn
	p.mu.Unlock()
}

// OnError registers a callback for task failures.
func (p *Pool) OnError(fn func(err error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// Queue schedules task, blocking while the pool is full.
func (p *Pool) Queue(task Task) {
	p.queued.Add(1)
	p.group.Go(func() error {
		err := task(p.ctx)
		if err != nil {
			p.failed.Add(1)
		}
		done := p.done.Add(1)
		p.mu.Lock()
		onDone, onError := p.onDone, p.onError
		p.mu.Unlock()
		if err != nil && onError != nil {
			onError(err)
		}
		if onDone != nil {
			onDone(done, p.queued.Load())
		}
		return nil
	})
}

// Flush waits for every queued task to finish.
func (p *Pool) Flush() {
	_ = p.group.Wait()
}

// Counts returns how many tasks completed and how many of those failed.
func (p *Pool) Counts() (done, failed int64) {
	return p.done.Load(), p.failed.Load()
}
