// Package retry absorbs transient store failures around durable writes.
package retry

import (
	"context"
	"time"
)

// Policy bounds how a write is retried.
type Policy struct {
	// Attempts is the total number of invocations, including the first.
	Attempts int
	// Delay is slept between attempts.
	Delay time.Duration
	// AttemptTimeout bounds each invocation when positive.
	AttemptTimeout time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
}

// Do invokes op until it succeeds, returns a non-retryable error, or runs out of
// attempts. The last error is returned unchanged. Retried ops must be safe to repeat;
// nothing here deduplicates a write that landed but reported failure.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := invoke(ctx, p.AttemptTimeout, op)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == attempts || !p.retryable(err) {
			break
		}
		if !sleep(ctx, p.Delay) {
			break
		}
	}
	return zero, lastErr
}

// Exec is Do for operations without a result.
func Exec(ctx context.Context, p Policy, op func(context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func invoke[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
