package server

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	_errors "filetransfer/pkg/errors"
)

// Limiter admits at most a fixed number of concurrent transfers.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
	timeout  time.Duration
	inFlight atomic.Int64
}

// NewLimiter creates a limiter with capacity slots. A positive timeout bounds
// how long Acquire waits on top of the caller's context.
func NewLimiter(capacity int64, timeout time.Duration) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
		timeout:  timeout,
	}
}

// Acquire blocks until a slot is free. It returns ErrServerBusy when the
// context or the queue timeout ends first.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.sem.TryAcquire(1) {
		l.inFlight.Add(1)
		return nil
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %d transfers in flight: %w", _errors.ErrServerBusy, l.capacity, err)
	}
	l.inFlight.Add(1)
	return nil
}

func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

// InFlight returns the number of held slots.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

func (l *Limiter) Capacity() int64 {
	return l.capacity
}
