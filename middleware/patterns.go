package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentstation/pocketflow"
)

// ErrTimeout is returned when an Exec attempt outlives its timeout.
var ErrTimeout = errors.New("pocketflow: exec timed out")

// Timeout bounds each Exec attempt. The attempt's context is cancelled when
// the timeout expires; an Exec that ignores its context keeps running in the
// background but its result is discarded.
func Timeout(duration time.Duration) Middleware {
	return func(name string, steps pocketflow.Steps) pocketflow.Steps {
		if duration <= 0 {
			return steps
		}
		inner := withDefaults(steps)
		wrapped := steps
		wrapped.Exec = func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
			timeoutCtx, cancel := context.WithTimeout(ctx, duration)
			defer cancel()

			type outcome struct {
				result any
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				result, err := inner.Exec(timeoutCtx, params, prepResult)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-timeoutCtx.Done():
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("%w: node %s after %v", ErrTimeout, name, duration)
			}
		}
		return wrapped
	}
}
