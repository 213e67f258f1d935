package tasks

import "context"

// NewPromise constructs a task with no body, completed later by exactly one
// of TrySetResult, TrySetException, or TrySetCanceled (spec.md §4.1's
// "promise style" construction, which WhenAll/WhenAny/Unwrap build on
// internally through newPromiseTask; NewPromise exposes it for bridging
// arbitrary callback-based APIs).
func NewPromise[R any](ctx context.Context, opts ...TaskOption) *Task[R] {
	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}
	t := &Task[R]{}
	t.st.or(stPromise)
	finalizeConstruction(&t.taskBase, ctx, o, true)
	return t
}

// TrySetResult completes a promise task with result, succeeding only if it
// is a promise and no TrySet* call has won the completion race yet (spec.md
// §4.1, §7 idempotence law).
func (t *Task[R]) TrySetResult(result R) bool {
	if !t.st.has(stPromise) {
		return false
	}
	if !t.st.atomicStateUpdate(stCompletionReserved, stCompletionReserved|stCompletedMask) {
		return false
	}
	t.result = result
	t.st.or(stRanToCompletion)
	t.ensureCP().signalDone()
	t.cont.finish()
	return true
}

// TrySetException completes a promise task as Faulted with err (or Canceled,
// if err is an *OperationCanceledError), succeeding only if it is a promise
// and no TrySet* call has won the completion race yet.
func (t *Task[R]) TrySetException(err error) bool {
	if !t.st.has(stPromise) {
		return false
	}
	if !t.st.atomicStateUpdate(stCompletionReserved, stCompletionReserved|stCompletedMask) {
		return false
	}
	adoptFailure(&t.taskBase, err)
	return true
}

// TrySetCanceled completes a promise task as Canceled, succeeding only if it
// is a promise and no TrySet* call has won the completion race yet.
func (t *Task[R]) TrySetCanceled(token *CancelToken) bool {
	if !t.st.has(stPromise) {
		return false
	}
	if !t.st.atomicStateUpdate(stCompletionReserved, stCompletionReserved|stCompletedMask) {
		return false
	}
	markCanceledNoRun(&t.taskBase, token)
	return true
}
