package tasks

import "context"

// ForEachStream applies fn to each item read from in concurrently via a
// Workers[NoResult] facade and returns its errors channel immediately
// (spec.md supplemented batch API, grounded on the teacher's
// ForEachStream).
func ForEachStream[T any](ctx context.Context, in <-chan T, fn func(context.Context, T) error, opts ...Option) <-chan error {
	opts = append(opts, WithStartImmediately())
	w := NewWorkers[NoResult](ctx, opts...)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-in:
				if !ok {
					return
				}
				item := v
				if err := w.AddTask(func(ctx context.Context) error { return fn(ctx, item) }); err != nil {
					return
				}
			}
		}
	}()

	return w.GetErrors()
}
