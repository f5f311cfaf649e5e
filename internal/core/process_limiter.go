package core

// process_limiter.go bounds how many jobs commit to the ledger at once.
//
// Different jobs stage to different upload IDs and may run concurrently, but
// each holds a database transaction for up to the process timeout, so the
// number running in parallel is capped. Waiters give up after maxWait with
// ErrTooManyJobs. WaitForDrain lets shutdown wait for running jobs.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyJobs is returned when every processing slot stays occupied for maxWait.
var ErrTooManyJobs = errors.New("too many jobs processing, please try again later")

// DefaultMaxConcurrentJobs is the default limit for parallel processing.
const DefaultMaxConcurrentJobs = 2

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// ProcessLimiter is a counting semaphore with a bounded wait.
type ProcessLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewProcessLimiter allows at most maxConcurrent jobs at once.
func NewProcessLimiter(maxConcurrent int, maxWait time.Duration) *ProcessLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentJobs
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &ProcessLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. On success the returned release func must be
// called exactly once; it is safe to call more than once.
func (l *ProcessLimiter) Acquire(ctx context.Context) (release func(), err error) {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return l.releaser(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTooManyJobs
	}
}

// TryAcquire takes a slot without waiting. ok is false if none is free.
func (l *ProcessLimiter) TryAcquire() (release func(), ok bool) {
	select {
	case l.slots <- struct{}{}:
		return l.releaser(), true
	default:
		return nil, false
	}
}

func (l *ProcessLimiter) releaser() func() {
	l.active.Add(1)
	var done atomic.Bool
	return func() {
		if done.CompareAndSwap(false, true) {
			l.active.Add(-1)
			<-l.slots
		}
	}
}

// ActiveCount returns the number of jobs holding a slot.
func (l *ProcessLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *ProcessLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// WaitForDrain blocks until no job holds a slot or ctx is done.
func (l *ProcessLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *ProcessLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
