package tasks

import "time"

// Wait blocks the caller until the task completes, timeoutMs elapses, or
// token is canceled, returning the task's own outcome once observed
// (spec.md §4.6). timeoutMs of -1 means wait indefinitely; 0 means poll
// without blocking. A nil or unsignalable token is ignored.
func (t *taskBase) Wait(timeoutMs int, token *CancelToken) error {
	if timeoutMs < -1 {
		return ErrInvalidTimeout
	}
	_, err := t.waitCore(timeoutMs, token)
	return err
}

// waitCore implements waiting (spec.md §4.6) without a spin phase: it makes
// one inline attempt if the task is still queued and the scheduler allows
// it, then blocks on the completion event, an optional timer, and an
// optional wait-token cancellation, racing all three with select.
func (t *taskBase) waitCore(timeoutMs int, token *CancelToken) (completed bool, err error) {
	if t.st.isCompleted() {
		return true, t.observeOutcome()
	}

	if sch := t.getScheduler(); sch != nil && t.scheduledWork != nil {
		sch.TryInline(t.scheduledWork, true)
		if t.st.isCompleted() {
			return true, t.observeOutcome()
		}
	}

	cp := t.ensureCP()

	if timeoutMs == 0 {
		select {
		case <-cp.done:
			return true, t.observeOutcome()
		default:
			return false, nil
		}
	}

	var timeoutCh <-chan time.Time
	if timeoutMs > 0 {
		timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var tokenDone <-chan struct{}
	if token.CanBeCanceled() {
		ch := make(chan struct{})
		reg := token.Register(func(any) { close(ch) }, nil)
		defer reg.Dispose()
		tokenDone = ch
	}

	select {
	case <-cp.done:
		return true, t.observeOutcome()
	case <-timeoutCh:
		return false, nil
	case <-tokenDone:
		return false, &OperationCanceledError{Token: token}
	}
}

// observeOutcome returns the task's terminal error, marking it observed, or
// nil for RanToCompletion / a task with no contingent properties allocated
// (meaning it never failed).
func (t *taskBase) observeOutcome() error {
	cp := t.peekCP()
	if cp == nil {
		return nil
	}
	cp.exMu.Lock()
	h := cp.exHolder
	cp.exMu.Unlock()
	if h == nil {
		return nil
	}
	return h.observe()
}

// WaitAll blocks until every task in tasks completes, returning the first
// non-nil outcome found in order (spec.md §4.8); each task's own exception
// is marked observed regardless of short-circuiting position, matching
// the all-observed guarantee used by unobserved-exception reporting.
func WaitAll(tasks []*taskBase, token *CancelToken) error {
	var first error
	for _, tb := range tasks {
		if err := tb.Wait(-1, token); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// WaitAny blocks until the first task in tasks completes (or token fires),
// returning its index and outcome (spec.md §4.8). A canceled wait token
// (as opposed to a canceled task) surfaces as index -1 with an
// *OperationCanceledError.
func WaitAny(tasks []*taskBase, token *CancelToken) (int, error) {
	if len(tasks) == 0 {
		return -1, ErrNoInputs
	}

	for _, tb := range tasks {
		if tb.st.isCompleted() {
			return indexOf(tasks, tb), tb.observeOutcome()
		}
	}

	type firstDone struct {
		idx int
		err error
	}
	result := make(chan firstDone, len(tasks))

	var tokenDone <-chan struct{}
	var reg CancelRegistration
	if token.CanBeCanceled() {
		ch := make(chan struct{})
		reg = token.Register(func(any) { close(ch) }, nil)
		tokenDone = ch
	}
	if reg != nil {
		defer reg.Dispose()
	}

	stop := make(chan struct{})
	defer close(stop)

	for i, tb := range tasks {
		i, tb := i, tb
		go func() {
			cp := tb.ensureCP()
			select {
			case <-cp.done:
				select {
				case result <- firstDone{idx: i, err: tb.observeOutcome()}:
				case <-stop:
				}
			case <-stop:
			}
		}()
	}

	select {
	case r := <-result:
		return r.idx, r.err
	case <-tokenDone:
		return -1, &OperationCanceledError{Token: token}
	}
}

func indexOf(tasks []*taskBase, target *taskBase) int {
	for i, tb := range tasks {
		if tb == target {
			return i
		}
	}
	return -1
}
