package retry

import (
	"context"
	"time"
)

// BackoffFunc returns how long to wait after a failed attempt.
// Attempts are numbered from 1.
type BackoffFunc func(attempt int) time.Duration

// Linear waits attempt*step after each failure.
func Linear(step time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * step
	}
}

// Do runs fn up to maxAttempts times, sleeping backoff(attempt) between
// failures. The last error is returned once attempts are exhausted.
// Context cancellation aborts the wait, not an attempt already running.
func Do(ctx context.Context, maxAttempts int, backoff BackoffFunc, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		wait := time.Duration(0)
		if backoff != nil {
			wait = backoff(attempt)
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
