// Package script runs sandboxed Lua snippets for the lua builtin node.
//
// A script sees two globals: input (the value handed to Exec) and params
// (the node's parameters). If the script defines exec(input) its result is
// returned; otherwise the chunk's own return value is used, and a script
// that returns nothing yields input unchanged.
package script

import (
	"context"
	"fmt"

	"github.com/Shopify/go-lua"
)

// Check compiles source without running it.
func Check(source string) error {
	l := lua.NewState()
	if err := lua.LoadString(l, source); err != nil {
		return fmt.Errorf("script syntax: %w", err)
	}
	return nil
}

// Run executes source in a fresh sandboxed state. go-lua cannot be
// interrupted, so ctx is only checked before the script starts.
func Run(ctx context.Context, source string, input any, params map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// go-lua states hold no OS resources and have no Close.
	l := lua.NewState()
	setupSandbox(l)

	pushValue(l, input)
	l.SetGlobal("input")
	pushValue(l, params)
	l.SetGlobal("params")

	if err := lua.DoString(l, source); err != nil {
		return nil, fmt.Errorf("script error: %w", err)
	}

	l.Global("exec")
	if l.TypeOf(-1) == lua.TypeFunction {
		pushValue(l, input)
		if err := l.ProtectedCall(1, 1, 0); err != nil {
			return nil, fmt.Errorf("exec error: %w", err)
		}
		result := pullValue(l, -1)
		l.Pop(1)
		return result, nil
	}
	l.Pop(1)

	if l.Top() > 0 {
		result := pullValue(l, -1)
		l.Pop(1)
		return result, nil
	}
	return input, nil
}
