package pocketflow_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/agentstation/pocketflow"
)

func identity() pocketflow.Node {
	return pocketflow.NewNode("bench", pocketflow.Steps{
		Exec: func(ctx context.Context, params pocketflow.Params, input any) (any, error) {
			return input, nil
		},
	}, pocketflow.WithLogger(pocketflow.NopLogger()))
}

// Benchmark node creation.
func BenchmarkNewNode(b *testing.B) {
	for b.Loop() {
		_ = identity()
	}
}

// Benchmark single node execution through a flow.
func BenchmarkSingleNodeFlow(b *testing.B) {
	flow := pocketflow.NewFlow(identity(), pocketflow.WithLogger(pocketflow.NopLogger()))
	ctx := context.Background()
	shared := pocketflow.Shared{}

	for b.Loop() {
		_, _ = flow.Run(ctx, shared)
	}
}

// Benchmark a linear chain of nodes.
func BenchmarkChain(b *testing.B) {
	for _, length := range []int{5, 20} {
		b.Run(fmt.Sprintf("length=%d", length), func(b *testing.B) {
			start := identity()
			current := start
			for i := 1; i < length; i++ {
				current = current.Next(identity())
			}
			flow := pocketflow.NewFlow(start, pocketflow.WithLogger(pocketflow.NopLogger()))
			ctx := context.Background()
			shared := pocketflow.Shared{}

			for b.Loop() {
				_, _ = flow.Run(ctx, shared)
			}
		})
	}
}

// Benchmark parallel batch nodes over varying item counts.
func BenchmarkParallelBatchNode(b *testing.B) {
	for _, size := range []int{10, 100} {
		b.Run(fmt.Sprintf("items=%d", size), func(b *testing.B) {
			items := make([]int, size)
			node := pocketflow.NewParallelBatchNode("square", pocketflow.Steps{
				Prep: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) (any, error) {
					return items, nil
				},
				Exec: func(ctx context.Context, params pocketflow.Params, item any) (any, error) {
					n := item.(int)
					return n * n, nil
				},
			}, pocketflow.WithLogger(pocketflow.NopLogger()))
			ctx := context.Background()
			shared := pocketflow.Shared{}

			for b.Loop() {
				_, _ = node.Run(ctx, shared)
			}
		})
	}
}

// Benchmark merging worker contexts.
func BenchmarkSharedMerge(b *testing.B) {
	base := pocketflow.Shared{"results": map[string]any{}, "log": []any{}}
	worker := pocketflow.Shared{"results": map[string]any{"a": 1}, "log": []any{"x"}, "n": 1}

	for b.Loop() {
		dst := base.Isolate()
		dst.Merge(worker, pocketflow.DefaultSkipPolicy)
	}
}
