// Package retry implements the bounded attempt loop used by node Exec steps.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy defines retry behavior.
type Policy struct {
	// MaxAttempts is the total number of attempts (at least 1).
	MaxAttempts int
	// Wait is the fixed delay between attempts (0 = retry immediately).
	Wait time.Duration
}

// New returns a policy with out-of-range values coerced up to their minimum.
func New(maxAttempts int, wait time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if wait < 0 {
		wait = 0
	}
	return Policy{MaxAttempts: maxAttempts, Wait: wait}
}

// ExhaustedError is returned by Do when every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

// Unwrap returns the error of the last attempt.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Func is a single attempt. attempt is 1-based.
type Func func(ctx context.Context, attempt int) (any, error)

// Do runs fn until it succeeds or the policy is exhausted. Each attempt is
// independent; nothing is memoized between them. onRetry, when set, is called
// after a failed attempt that will be retried.
func (p Policy) Do(ctx context.Context, fn Func, onRetry func(attempt int, err error)) (any, error) {
	p = New(p.MaxAttempts, p.Wait)

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if p.Wait > 0 {
			timer := time.NewTimer(p.Wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return nil, &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}
