package tasks

import "context"

// RunAll runs fns concurrently via a Workers[R] facade it owns end to end:
// Start, AddTask every fn, collect one output (result or error) per started
// fn, then Close (spec.md supplemented batch API, grounded on the
// teacher's RunAll). fn must be one of the shapes accepted by New.
//
// Results are returned in completion order unless WithPreserveOrder is in
// opts. If WithStopOnError is set, cancellation is triggered on the first
// error and some fns may never start. The returned error aggregates every
// task failure via go-multierror.
func RunAll[R any](ctx context.Context, fns []any, opts ...Option) ([]R, error) {
	if len(fns) == 0 {
		return nil, nil
	}

	opts = append(opts, WithStopOnErrorBuffer(uint(len(fns))), WithStartImmediately())
	w := NewWorkers[R](ctx, opts...)

	started := 0
	for _, fn := range fns {
		if err := w.AddTask(fn); err != nil {
			break
		}
		started++
	}

	results := make([]R, 0, started)
	errs := make([]error, 0)

	remaining := started
	resultsCh, errorsCh := w.GetResults(), w.GetErrors()
	for remaining > 0 {
		select {
		case r := <-resultsCh:
			results = append(results, r)
			remaining--
		case e := <-errorsCh:
			errs = append(errs, e)
			remaining--
		case <-ctx.Done():
			remaining = 0
		}
	}

	w.Close()

	return results, joinErrors(errs)
}
