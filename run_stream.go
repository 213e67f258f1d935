package tasks

import "context"

// RunStream consumes ready-to-run task functions from in and executes them
// concurrently via a Workers[R] facade, returning its results/errors
// channels immediately (spec.md supplemented batch API, grounded on the
// teacher's RunStream). Each value read from in must be one of the shapes
// accepted by New.
func RunStream[R any](ctx context.Context, in <-chan any, opts ...Option) (<-chan R, <-chan error) {
	opts = append(opts, WithStartImmediately())
	w := NewWorkers[R](ctx, opts...)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn, ok := <-in:
				if !ok {
					return
				}
				if err := w.AddTask(fn); err != nil {
					return
				}
			}
		}
	}()

	return w.GetResults(), w.GetErrors()
}
