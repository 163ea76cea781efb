// Package middleware wraps node lifecycle hooks with cross-cutting behavior
// such as logging, metrics and timeouts.
package middleware

import (
	"context"

	"github.com/agentstation/pocketflow"
)

// Middleware wraps the hooks of the node called name.
type Middleware func(name string, steps pocketflow.Steps) pocketflow.Steps

// Chain combines middlewares into one. The first middleware is the
// outermost wrapper.
func Chain(middlewares ...Middleware) Middleware {
	return func(name string, steps pocketflow.Steps) pocketflow.Steps {
		for i := len(middlewares) - 1; i >= 0; i-- {
			steps = middlewares[i](name, steps)
		}
		return steps
	}
}

// Apply wraps steps with each middleware in order, so the last one ends up
// outermost.
func Apply(name string, steps pocketflow.Steps, middlewares ...Middleware) pocketflow.Steps {
	for _, mw := range middlewares {
		steps = mw(name, steps)
	}
	return steps
}

// withDefaults fills nil Prep, Exec and Post hooks with the behavior a node
// gives them, so wrappers can always call through.
func withDefaults(steps pocketflow.Steps) pocketflow.Steps {
	if steps.Prep == nil {
		steps.Prep = func(context.Context, pocketflow.Params, pocketflow.Shared) (any, error) {
			return nil, nil
		}
	}
	if steps.Exec == nil {
		steps.Exec = func(context.Context, pocketflow.Params, any) (any, error) {
			return nil, nil
		}
	}
	if steps.Post == nil {
		steps.Post = func(context.Context, pocketflow.Params, pocketflow.Shared, any, any) (string, error) {
			return pocketflow.DefaultAction, nil
		}
	}
	return steps
}
