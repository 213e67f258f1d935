package tasks

import "context"

// ForEach applies fn to each item concurrently, returning the aggregated
// error (nil if every call succeeded), by delegating to RunAll with
// error-only tasks (spec.md supplemented batch API, grounded on the
// teacher's ForEach).
func ForEach[T any](ctx context.Context, items []T, fn func(context.Context, T) error, opts ...Option) error {
	if len(items) == 0 {
		return nil
	}
	fns := make([]any, len(items))
	for i := range items {
		item := items[i]
		fns[i] = func(ctx context.Context) error { return fn(ctx, item) }
	}
	_, err := RunAll[NoResult](ctx, fns, opts...)
	return err
}
