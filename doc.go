/*
Package pocketflow provides a minimal graph-based task orchestration engine:
nodes with a Prep/Exec/Post lifecycle connected by named action edges and
executed synchronously by a Flow.

Key features:
  - Prep reads the shared context, Exec does the work, Post writes results
    and returns the action that selects the next edge
  - Bounded Exec retry with a fixed wait and an opt-in fallback
  - Batch nodes that run Exec per item, sequentially or concurrently, with
    output order always matching input order
  - Flows that are nodes themselves, plus batch flows that rerun a graph per
    parameter set and parallel batch flows that fan out and merge back
  - Functional options for configuration

Basic usage:

	add := pocketflow.NewNode("add", pocketflow.Steps{
		Post: func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared, _, _ any) (string, error) {
			shared["current"] = shared["current"].(int) + params["n"].(int)
			return pocketflow.DefaultAction, nil
		},
	})

	start.Next(add).Next(report)
	flow := pocketflow.NewFlow(start)
	flow.SetParams(pocketflow.Params{"n": 3})

	shared := pocketflow.Shared{}
	action, err := flow.Run(ctx, shared)

Branching:

	review.On("approved", publish)
	review.On("rejected", revise)
	revise.Next(review)

Every node visited by a flow is a clone of the node you built, so the same
graph can run many times, nested in other flows, or on several goroutines.

Parallel fan-out:

	flow := pocketflow.NewParallelBatchFlow(processor, func(ctx context.Context, params pocketflow.Params, shared pocketflow.Shared) ([]pocketflow.Params, error) {
		return []pocketflow.Params{{"id": 0}, {"id": 1}}, nil
	}, pocketflow.WithSkipKeys("raw"))

Each worker sees its own copy of the shared context; the copies are merged
back after every worker finishes.
*/
package pocketflow
