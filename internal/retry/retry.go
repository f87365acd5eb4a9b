// Package retry implements the two backoff disciplines this project needs:
// deterministic linear backoff for TCP connect attempts, and quadratic
// backoff for process-spawn resource pressure. Both are bounded by
// MaxRetries and context-cancellable.
package retry

import (
	"context"
	"time"
)

// MaxRetries bounds every retry loop in this package.
const MaxRetries = 10

// connectBackoff computes the i-th (0-indexed) wait before a connect retry.
// A package-level var, rather than inlined in Connect, so tests can shrink
// it and exercise a full MaxRetries exhaustion without sleeping 36 real
// seconds; production code never overrides it.
var connectBackoff = func(i int) time.Duration { return time.Duration(i) * time.Second }

// spawnBackoff computes the i-th (0-indexed) wait before a spawn retry.
var spawnBackoff = func(i int) time.Duration { return time.Duration(i*i) * time.Second }

// Connect retries fn until it succeeds, MaxRetries is exhausted, or ctx is
// done. The i-th retry (0-indexed) waits i seconds before reattempting,
// matching the reference implementation's deterministic backoff. Only the
// connect step is meant to be retried this way; a caller that dials
// successfully and then fails to write/read should not route that failure
// back through Connect.
func Connect[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var lastErr error
	for i := 0; i < MaxRetries; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if i == MaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(connectBackoff(i)):
		}
	}
	var zero T
	return zero, lastErr
}

// Spawn retries fn while retryable(err) reports true, backing off i*i
// seconds between the i-th and (i+1)-th attempt (0-indexed), up to
// MaxRetries total attempts.
func Spawn[T any](ctx context.Context, fn func() (T, error), retryable func(error) bool) (T, error) {
	var lastErr error
	for i := 0; i < MaxRetries; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			var zero T
			return zero, err
		}
		lastErr = err

		if i == MaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(spawnBackoff(i)):
		}
	}
	var zero T
	return zero, lastErr
}
