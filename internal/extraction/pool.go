package extraction

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrQueueFull reports that the worker pool's configured backlog is
// exhausted and the request was rejected rather than queued.
var ErrQueueFull = errors.New("worker pool queue full")

// Pool bounds concurrent CPU-heavy work so a burst of uploads cannot starve
// the request-serving path. Excess callers wait for a free slot unless an
// explicit queue depth is configured, in which case callers beyond the
// backlog are rejected immediately.
type Pool struct {
	sem        *semaphore.Weighted
	queueDepth int64
	waiting    atomic.Int64
}

// NewPool builds a pool with the given number of workers. queueDepth <= 0
// means callers wait indefinitely for a slot.
func NewPool(workers, queueDepth int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		sem:        semaphore.NewWeighted(int64(workers)),
		queueDepth: int64(queueDepth),
	}
}

// Do runs fn on a pool slot, waiting for capacity first. The context only
// bounds the wait; once fn starts it runs to completion.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	if p.sem.TryAcquire(1) {
		defer p.sem.Release(1)
		return fn()
	}

	if p.queueDepth > 0 {
		if p.waiting.Add(1) > p.queueDepth {
			p.waiting.Add(-1)
			return ErrQueueFull
		}
		defer p.waiting.Add(-1)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
