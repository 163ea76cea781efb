package pocketflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/pocketflow"
)

var errTransient = errors.New("transient failure")

func TestNodeLifecycleOrder(t *testing.T) {
	var calls []string

	node := pocketflow.NewNode("ordered", pocketflow.Steps{
		Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
			calls = append(calls, "prep")
			return shared["input"], nil
		},
		Exec: func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
			calls = append(calls, "exec")
			return prepResult.(string) + "-exec", nil
		},
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, prepResult, execResult any) (string, error) {
			calls = append(calls, "post")
			shared["prep"] = prepResult
			shared["output"] = execResult
			return "done", nil
		},
	})

	shared := pocketflow.Shared{"input": "value"}
	action, err := node.Run(context.Background(), shared)

	require.NoError(t, err)
	assert.Equal(t, "done", action)
	assert.Equal(t, []string{"prep", "exec", "post"}, calls)
	assert.Equal(t, "value", shared["prep"])
	assert.Equal(t, "value-exec", shared["output"])
}

func TestNodeDefaults(t *testing.T) {
	t.Run("empty steps return the default action", func(t *testing.T) {
		action, err := pocketflow.NewNode("empty", pocketflow.Steps{}).Run(context.Background(), pocketflow.Shared{})
		require.NoError(t, err)
		assert.Equal(t, pocketflow.DefaultAction, action)
	})

	t.Run("empty action is normalized", func(t *testing.T) {
		action, err := setKey("blank", "k", 1, "").Run(context.Background(), pocketflow.Shared{})
		require.NoError(t, err)
		assert.Equal(t, pocketflow.DefaultAction, action)
	})
}

func TestSetParamsIsFluent(t *testing.T) {
	node := pocketflow.NewNode("params", pocketflow.Steps{})

	got := node.SetParams(pocketflow.Params{"a": 1})
	assert.Same(t, node, got)
	assert.Equal(t, pocketflow.Params{"a": 1}, node.Params())

	node.SetParams(nil)
	assert.NotNil(t, node.Params())
	assert.Empty(t, node.Params())
}

func TestEdgeRegistration(t *testing.T) {
	a := pocketflow.NewNode("a", pocketflow.Steps{})
	b := pocketflow.NewNode("b", pocketflow.Steps{})
	c := pocketflow.NewNode("c", pocketflow.Steps{})

	t.Run("next returns the successor", func(t *testing.T) {
		got := a.Next(b).Next(c)
		assert.Same(t, c, got)
		assert.Same(t, b, a.Successors()[pocketflow.DefaultAction])
		assert.Same(t, c, b.Successors()[pocketflow.DefaultAction])
	})

	t.Run("on returns the node itself", func(t *testing.T) {
		got := a.On("branch", c)
		assert.Same(t, a, got)
		assert.Same(t, c, a.Successors()["branch"])
	})
}

func TestSuccessorOverwriteWarns(t *testing.T) {
	logger := &recordingLogger{}
	first := setKey("first", "visited", "first", pocketflow.DefaultAction)
	second := setKey("second", "visited", "second", pocketflow.DefaultAction)

	start := pocketflow.NewNode("start", pocketflow.Steps{}, pocketflow.WithLogger(logger))
	start.On("go", first)
	start.On("go", second)

	assert.Equal(t, []string{"overwriting successor"}, logger.messages("warn"))
	assert.Same(t, second, start.Successors()["go"])

	routed := pocketflow.NewNode("routed", pocketflow.Steps{
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, _ any) (string, error) {
			return "go", nil
		},
	})
	routed.On("go", first)
	routed.On("go", second)

	shared := pocketflow.Shared{}
	_, err := pocketflow.NewFlow(routed).Run(context.Background(), shared)
	require.NoError(t, err)
	assert.Equal(t, "second", shared["visited"])
}

func TestStandaloneRunWarnsAboutSuccessors(t *testing.T) {
	logger := &recordingLogger{}
	node := pocketflow.NewNode("lonely", pocketflow.Steps{}, pocketflow.WithLogger(logger))
	node.Next(setKey("never", "never", true, pocketflow.DefaultAction))

	shared := pocketflow.Shared{}
	_, err := node.Run(context.Background(), shared)

	require.NoError(t, err)
	assert.Equal(t, []string{"node won't run successors, use a flow"}, logger.messages("warn"))
	assert.NotContains(t, shared, "never")
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name         string
		maxAttempts  int
		failures     int
		wantAttempts int
		wantErr      bool
	}{
		{name: "succeeds first time", maxAttempts: 3, failures: 0, wantAttempts: 1},
		{name: "fails twice then succeeds", maxAttempts: 3, failures: 2, wantAttempts: 3},
		{name: "never succeeds", maxAttempts: 3, failures: 10, wantAttempts: 3, wantErr: true},
		{name: "zero attempts coerced to one", maxAttempts: 0, failures: 1, wantAttempts: 1, wantErr: true},
		{name: "negative attempts coerced to one", maxAttempts: -2, failures: 0, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			var seen []int
			node := pocketflow.NewNode("flaky", pocketflow.Steps{
				Exec: func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
					attempts++
					seen = append(seen, pocketflow.Attempt(ctx))
					if attempts <= tt.failures {
						return nil, errTransient
					}
					return "success", nil
				},
				Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, execResult any) (string, error) {
					shared["result"] = execResult
					shared["attempts"] = pocketflow.Attempt(ctx)
					return pocketflow.DefaultAction, nil
				},
			}, pocketflow.WithMaxAttempts(tt.maxAttempts))

			shared := pocketflow.Shared{}
			_, err := node.Run(context.Background(), shared)

			assert.Equal(t, tt.wantAttempts, attempts)
			if tt.wantErr {
				require.ErrorIs(t, err, errTransient)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "success", shared["result"])
			assert.Equal(t, 0, shared["attempts"], "Attempt is only set inside Exec")
			assert.Equal(t, tt.wantAttempts, seen[len(seen)-1])
		})
	}
}

func TestRetryWaitsBetweenAttempts(t *testing.T) {
	attempts := 0
	node := pocketflow.NewNode("slow-retry", pocketflow.Steps{
		Exec: func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
			attempts++
			if attempts < 3 {
				return nil, errTransient
			}
			return nil, nil
		},
	}, pocketflow.WithRetry(3, 25*time.Millisecond))

	start := time.Now()
	_, err := node.Run(context.Background(), pocketflow.Shared{})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestFallback(t *testing.T) {
	t.Run("invoked exactly once after exhausting attempts", func(t *testing.T) {
		attempts, fallbacks := 0, 0
		var fallbackErr error
		node := pocketflow.NewNode("fallback", pocketflow.Steps{
			Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
				return "prepared", nil
			},
			Exec: func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
				attempts++
				return nil, errTransient
			},
			Fallback: func(ctx context.Context, params pocketflow.Params, prepResult any, execErr error) (any, error) {
				fallbacks++
				fallbackErr = execErr
				return "fallback:" + prepResult.(string), nil
			},
			Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, execResult any) (string, error) {
				shared["result"] = execResult
				return pocketflow.DefaultAction, nil
			},
		}, pocketflow.WithMaxAttempts(4))

		shared := pocketflow.Shared{}
		_, err := node.Run(context.Background(), shared)

		require.NoError(t, err)
		assert.Equal(t, 4, attempts)
		assert.Equal(t, 1, fallbacks)
		assert.Same(t, errTransient, fallbackErr)
		assert.Equal(t, "fallback:prepared", shared["result"])
	})

	t.Run("fallback failure propagates", func(t *testing.T) {
		errFallback := errors.New("fallback failed")
		node := pocketflow.NewNode("fallback-fails", pocketflow.Steps{
			Exec: func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
				return nil, errTransient
			},
			Fallback: func(ctx context.Context, params pocketflow.Params, prepResult any, execErr error) (any, error) {
				return nil, errFallback
			},
		})

		_, err := node.Run(context.Background(), pocketflow.Shared{})
		require.ErrorIs(t, err, errFallback)
	})

	t.Run("no fallback re-raises the original failure", func(t *testing.T) {
		node := pocketflow.NewNode("no-fallback", pocketflow.Steps{
			Exec: func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
				return nil, errTransient
			},
		}, pocketflow.WithMaxAttempts(2))

		_, err := node.Run(context.Background(), pocketflow.Shared{})
		require.ErrorIs(t, err, errTransient)
		assert.Contains(t, err.Error(), "no-fallback")
	})
}

func TestPrepAndPostFailuresAreNotRetried(t *testing.T) {
	errPrep := errors.New("prep broke")
	errPost := errors.New("post broke")

	tests := []struct {
		name    string
		steps   func(calls *int) pocketflow.Steps
		wantErr error
	}{
		{
			name: "prep",
			steps: func(calls *int) pocketflow.Steps {
				return pocketflow.Steps{
					Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
						*calls++
						return nil, errPrep
					},
				}
			},
			wantErr: errPrep,
		},
		{
			name: "post",
			steps: func(calls *int) pocketflow.Steps {
				return pocketflow.Steps{
					Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, _ any) (string, error) {
						*calls++
						return "", errPost
					},
				}
			},
			wantErr: errPost,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			fallbacks := 0
			steps := tt.steps(&calls)
			steps.Fallback = func(ctx context.Context, params pocketflow.Params, prepResult any, execErr error) (any, error) {
				fallbacks++
				return nil, nil
			}
			node := pocketflow.NewNode(tt.name, steps, pocketflow.WithMaxAttempts(5))

			_, err := node.Run(context.Background(), pocketflow.Shared{})

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 1, calls)
			assert.Zero(t, fallbacks)
		})
	}
}

func TestRetryWaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fallbacks := 0
	node := pocketflow.NewNode("cancelled", pocketflow.Steps{
		Exec: func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
			cancel()
			return nil, errTransient
		},
		Fallback: func(ctx context.Context, params pocketflow.Params, prepResult any, execErr error) (any, error) {
			fallbacks++
			return nil, nil
		},
	}, pocketflow.WithRetry(3, time.Hour))

	_, err := node.Run(ctx, pocketflow.Shared{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fallbacks)
}

func TestFlowExecFails(t *testing.T) {
	flow := pocketflow.NewFlow(pocketflow.NewNode("start", pocketflow.Steps{}))

	_, err := flow.Exec(context.Background(), nil)
	require.ErrorIs(t, err, pocketflow.ErrFlowExec)
}

func TestParamsReachHooks(t *testing.T) {
	node := pocketflow.NewNode("param-reader", pocketflow.Steps{
		Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
			return params["word"], nil
		},
		Exec: func(ctx context.Context, params pocketflow.Params, prepResult any) (any, error) {
			return prepResult.(string) + params["suffix"].(string), nil
		},
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, execResult any) (string, error) {
			shared["out"] = execResult
			return pocketflow.DefaultAction, nil
		},
	})
	node.SetParams(pocketflow.Params{"word": "hello", "suffix": "!"})

	shared := pocketflow.Shared{}
	_, err := node.Run(context.Background(), shared)

	require.NoError(t, err)
	assert.Equal(t, "hello!", shared["out"])
}
