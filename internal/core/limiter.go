package core

// limiter.go bounds how many batches and dry runs execute at once.
//
// Each batch call holds a slot for its duration. When all slots are taken a
// caller waits up to maxWait before failing with ErrTooManyBatches, so an
// overloaded server sheds load instead of queueing indefinitely.

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultMaxConcurrentBatches = 5
	DefaultMaxWaitTime          = 30 * time.Second
)

// BatchLimiter is a weighted semaphore with slot accounting.
type BatchLimiter struct {
	sem     *semaphore.Weighted
	size    int
	maxWait time.Duration
	active  atomic.Int64
}

// NewBatchLimiter allows at most maxConcurrent simultaneous executions.
func NewBatchLimiter(maxConcurrent int, maxWait time.Duration) *BatchLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentBatches
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &BatchLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		size:    maxConcurrent,
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. The caller must Release it when done.
func (l *BatchLimiter) Acquire(ctx context.Context) error {
	if l.TryAcquire() {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyBatches
	}
	l.active.Add(1)
	return nil
}

// TryAcquire takes a slot without waiting.
func (l *BatchLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *BatchLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of slots in use.
func (l *BatchLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// WaitForDrain blocks until no slot is in use or ctx is done.
func (l *BatchLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a snapshot for the health endpoint.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

func (l *BatchLimiter) Status() LimiterStatus {
	active := l.ActiveCount()
	return LimiterStatus{
		Active:        active,
		Available:     l.size - active,
		MaxConcurrent: l.size,
	}
}
