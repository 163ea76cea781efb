package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/agentstation/pocketflow"
)

// Logging logs each lifecycle phase of a node. Exec failures are logged at
// error level, everything else at debug.
func Logging(logger pocketflow.Logger) Middleware {
	return func(name string, steps pocketflow.Steps) pocketflow.Steps {
		inner := withDefaults(steps)
		wrapped := inner

		wrapped.Prep = func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
			start := time.Now()
			result, err := inner.Prep(ctx, params, shared)
			logger.Debug(ctx, "node prep completed",
				"node", name,
				"duration", time.Since(start),
				"result_type", fmt.Sprintf("%T", result),
				"error", err)
			return result, err
		}

		wrapped.Exec = func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
			start := time.Now()
			result, err := inner.Exec(ctx, params, prepResult)
			if err != nil {
				logger.Error(ctx, "node exec failed",
					"node", name,
					"attempt", pocketflow.Attempt(ctx),
					"duration", time.Since(start),
					"error", err)
			} else {
				logger.Debug(ctx, "node exec completed",
					"node", name,
					"attempt", pocketflow.Attempt(ctx),
					"duration", time.Since(start),
					"result_type", fmt.Sprintf("%T", result))
			}
			return result, err
		}

		wrapped.Post = func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, prepResult, execResult any) (string, error) {
			action, err := inner.Post(ctx, params, shared, prepResult, execResult)
			logger.Debug(ctx, "node post completed",
				"node", name,
				"action", action,
				"error", err)
			return action, err
		}

		return wrapped
	}
}
