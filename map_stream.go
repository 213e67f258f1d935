package tasks

import "context"

// MapStream consumes items from in, applies fn to each concurrently via a
// Workers[R] facade, and returns its results/errors channels immediately
// (spec.md supplemented batch API, grounded on the teacher's MapStream).
//
// A forwarder goroutine reads from in until it closes or ctx is done, adds
// one task per item, then waits for every added task to finish before
// closing the facade (so GetResults/GetErrors close once intake and
// draining are both complete).
func MapStream[T, R any](ctx context.Context, in <-chan T, fn func(context.Context, T) (R, error), opts ...Option) (<-chan R, <-chan error) {
	opts = append(opts, WithStartImmediately())
	w := NewWorkers[R](ctx, opts...)

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
				if err := w.AddTask(func(ctx context.Context) (R, error) { return fn(ctx, item) }); err != nil {
					return
				}
			}
		}
	}()

	return w.GetResults(), w.GetErrors()
}
