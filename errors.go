package tasks

import (
	"errors"

	"github.com/hashicorp/go-multierror"
)

// Namespace prefixes every sentinel error this module defines, mirroring the
// teacher's errors.go convention of a package-wide prefix constant.
const Namespace = "tasks"

var (
	// ErrInvalidState is returned by Start when a task has already been
	// started, is a promise, is a continuation awaiting its antecedent, or
	// already carries a scheduler (spec.md §4.2).
	ErrInvalidState = errors.New(Namespace + ": invalid task state for requested operation")

	// ErrSchedulerMisbehavior is returned when the runtime observes an
	// execution-entry invariant violation: a task whose DELEGATE_INVOKED bit
	// is already set being entered again (spec.md §4.3).
	ErrSchedulerMisbehavior = errors.New(Namespace + ": scheduler invoked a task that was already running")

	// ErrAlreadyDisposed is returned by Dispose when called on a task whose
	// Dispose has already run.
	ErrAlreadyDisposed = errors.New(Namespace + ": task has been disposed")

	// ErrDisposeNotCompleted is returned by Dispose when called on a task
	// that has not reached a terminal state.
	ErrDisposeNotCompleted = errors.New(Namespace + ": cannot dispose a task that has not completed")

	// ErrNoInputs is returned by WhenAny when called with zero tasks (spec.md §8).
	ErrNoInputs = errors.New(Namespace + ": at least one task is required")

	// ErrInvalidTimeout is returned for a negative timeout other than -1
	// (spec.md §5 "Cancellation/timeout semantics").
	ErrInvalidTimeout = errors.New(Namespace + ": timeout must be -1, 0, or a positive duration")

	// ErrTaskNotPromise describes an attempt to complete a task constructed
	// with a body as if it were a promise. TrySetResult/TrySetException/
	// TrySetCanceled do not return it; they report such a call by returning
	// false.
	ErrTaskNotPromise = errors.New(Namespace + ": task is not a promise")
)

// OperationCanceledError is the failure surfaced when a task completes in the
// Canceled state. It carries the token responsible, so a waiter can
// distinguish "my own wait was canceled" from "the task I awaited was
// canceled by someone else" (spec.md §4.5 Acknowledgement, §4.6 step 5).
type OperationCanceledError struct {
	Token *CancelToken
}

func (e *OperationCanceledError) Error() string {
	return Namespace + ": operation canceled"
}

// Is reports whether target is also an *OperationCanceledError, letting
// errors.Is(err, &OperationCanceledError{}) checks succeed independent of
// which token populated either side.
func (e *OperationCanceledError) Is(target error) bool {
	_, ok := target.(*OperationCanceledError)
	return ok
}

// joinErrors aggregates errs via go-multierror, or returns nil if errs is
// empty or contains only nils (mirrors the teacher's errors.Join-based batch
// aggregation, swapped for the aggregator already wired into exceptionHolder).
func joinErrors(errs []error) error {
	var agg *multierror.Error
	for _, e := range errs {
		if e != nil {
			agg = multierror.Append(agg, e)
		}
	}
	return agg.ErrorOrNil()
}
