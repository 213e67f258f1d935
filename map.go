package tasks

import "context"

// Map fans out items through fn concurrently and returns results paired
// with an aggregated error, by wrapping each item into a task and
// delegating to RunAll (spec.md supplemented batch API, grounded on the
// teacher's Map).
func Map[T, R any](ctx context.Context, items []T, fn func(context.Context, T) (R, error), opts ...Option) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	fns := make([]any, len(items))
	for i := range items {
		item := items[i]
		fns[i] = func(ctx context.Context) (R, error) { return fn(ctx, item) }
	}
	return RunAll[R](ctx, fns, opts...)
}
