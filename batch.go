package pocketflow

import (
	"context"
	"fmt"
	"reflect"

	"golang.org/x/sync/errgroup"
)

// execBatch runs the retrying Exec once per item, in order. The first item
// that fails after its retries and fallback aborts the rest.
func (n *node) execBatch(ctx context.Context, prepResult any) (any, error) {
	items, ok := toItems(prepResult)
	if !ok {
		return []any{}, nil
	}

	results := make([]any, 0, len(items))
	for i, item := range items {
		result, err := n.execWithRetry(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		results = append(results, result)
	}
	return results, nil
}

// execParallelBatch runs every item on its own goroutine and clone of the
// node. Results are written to the slot of their input index. All workers
// are joined before a failure is reported; in-flight items are not cancelled.
func (n *node) execParallelBatch(ctx context.Context, prepResult any) (any, error) {
	items, ok := toItems(prepResult)
	if !ok || len(items) == 0 {
		return []any{}, nil
	}

	results := make([]any, len(items))
	var g errgroup.Group
	for i, item := range items {
		worker := n.clone().(*node)
		g.Go(func() error {
			result, err := worker.execWithRetry(ctx, item)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// toItems converts a slice or array to []any. Anything else, including nil
// and byte slices, is not a sequence.
func toItems(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || !isSequence(rv) {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
