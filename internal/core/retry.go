package core

import (
	"context"
	"time"
)

// BackoffPolicy computes capped exponential delays between retry attempts.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff waits 1s, 2s, 4s, ... up to 30s between attempts.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Base: DefaultBackoffBase, Max: DefaultBackoffMax}
}

// Delay returns the wait before retry number n (n starts at 1).
func (p BackoffPolicy) Delay(n int) time.Duration {
	if p.Base <= 0 || n <= 0 {
		return 0
	}
	d := p.Base
	for i := 1; i < n; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy bounds how often an operation is attempted.
// MaxRetries is the number of additional attempts after the first one.
type RetryPolicy struct {
	MaxRetries int
	Backoff    BackoffPolicy
	// Sleep defaults to a context-aware timer. Tests swap it out.
	Sleep SleepFunc
}

// RetryResult is the outcome of Retry: either a value, or the last error
// seen once the attempt budget ran out.
type RetryResult[T any] struct {
	Value    T
	Attempts int
	Err      error
}

// Exhausted reports whether every attempt failed.
func (r RetryResult[T]) Exhausted() bool { return r.Err != nil }

// Retry calls op until it succeeds or MaxRetries+1 attempts have failed,
// sleeping per the backoff policy between attempts. A cancelled context stops
// the loop and is reported as the result's error.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context, attempt int) (T, error)) RetryResult[T] {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	var res RetryResult[T]
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.Backoff.Delay(attempt-1)); err != nil {
				res.Err = err
				return res
			}
		}
		res.Attempts = attempt
		v, err := op(ctx, attempt)
		if err == nil {
			res.Value = v
			res.Err = nil
			return res
		}
		res.Value = v
		res.Err = err
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			return res
		}
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
