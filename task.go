package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// taskBase holds every field of spec.md §3's Task that does not depend on
// the result type R, so that parent/child and continuation bookkeeping can
// hold plain *taskBase references across different Task[R] instantiations
// (spec.md §9: "tagged variants ... rather than a subclass"). Task[R]
// embeds taskBase and adds the typed result.
type taskBase struct {
	idRaw atomic.Uint64

	st stateWord

	creationOpts uint32
	token        *CancelToken

	schedulerSlot atomic.Pointer[schedWrap]
	scheduledWork *ScheduledWork

	parent *taskBase

	cont continuationObject
	cp   atomic.Pointer[contingentProperties]

	// invoke runs the task body; nil for a promise task (spec.md §8
	// invariant: "m_action is non-null iff the task is not started, not
	// completed, and not a promise"). Cleared at stage three.
	invoke func(ctx context.Context)

	asyncState any

	disposed atomic.Bool
}

type schedWrap struct{ s Scheduler }

var globalTaskID atomic.Uint64

func nextGlobalTaskID() uint64 {
	for {
		v := globalTaskID.Add(1)
		if v != 0 {
			return v
		}
	}
}

// ID returns the task's identifier, assigned lazily and monotonically on
// first access (spec.md §3).
func (t *taskBase) ID() uint64 {
	for {
		if cur := t.idRaw.Load(); cur != 0 {
			return cur
		}
		candidate := nextGlobalTaskID()
		if t.idRaw.CompareAndSwap(0, candidate) {
			return candidate
		}
	}
}

func (t *taskBase) Status() Status { return statusFromState(t.st.load()) }

func (t *taskBase) IsCompleted() bool { return t.st.isCompleted() }
func (t *taskBase) IsFaulted() bool   { return t.st.has(stFaulted) }
func (t *taskBase) IsCanceled() bool  { return t.st.has(stCanceled) }

func (t *taskBase) CreationOptions() uint32 { return t.creationOpts }
func (t *taskBase) AsyncState() any         { return t.asyncState }

func (t *taskBase) trySetScheduler(s Scheduler) bool {
	return t.schedulerSlot.CompareAndSwap(nil, &schedWrap{s: s})
}

func (t *taskBase) getScheduler() Scheduler {
	if w := t.schedulerSlot.Load(); w != nil {
		return w.s
	}
	return nil
}

// Start hands the task to scheduler s (spec.md §4.2). A second call, a call
// on a promise, or a call on an already-started/completed/continuation task
// fails with ErrInvalidState and does not change state.
func (t *taskBase) Start(s Scheduler) error {
	if t.st.isCompleted() {
		return ErrInvalidState
	}
	if t.invoke == nil {
		return ErrInvalidState
	}
	if t.st.has(stContinuation) {
		return ErrInvalidState
	}
	if !t.trySetScheduler(s) {
		return ErrInvalidState
	}
	t.doActivate(s, context.Background())
	return nil
}

// RunSynchronously asks s to inline the task on the calling goroutine; if s
// declines, the task is queued and the caller blocks until completion
// (spec.md §4.2).
func (t *taskBase) RunSynchronously(s Scheduler) error {
	if t.st.isCompleted() {
		return ErrInvalidState
	}
	if t.invoke == nil {
		return ErrInvalidState
	}
	if t.st.has(stContinuation) {
		return ErrInvalidState
	}
	if !t.trySetScheduler(s) {
		return ErrInvalidState
	}

	cp := t.ensureCP()
	ctx := context.Background()
	cp.execCtx = ctx

	if !t.st.markStarted() {
		return nil
	}

	work := &ScheduledWork{ID: t.ID(), Run: func() { t.execute(ctx) }}
	t.scheduledWork = work

	if s.TryInline(work, false) {
		return nil
	}
	if err := s.Queue(work); err != nil {
		t.completeSchedulerFailure(err)
		return nil
	}
	_, _ = t.waitCore(-1, nil)
	return nil
}

// doActivate is shared by Start and continuation activation: capture the
// execution context, guard against a racing cancellation via markStarted,
// then queue the work (spec.md §4.2, §4.4 continuation activation).
func (t *taskBase) doActivate(s Scheduler, ctx context.Context) {
	cp := t.ensureCP()
	if cp.execCtx == nil {
		cp.execCtx = ctx
	}

	if !t.st.markStarted() {
		return
	}

	work := &ScheduledWork{ID: t.ID(), Run: func() { t.execute(cp.execCtx) }}
	t.scheduledWork = work

	if err := s.Queue(work); err != nil {
		t.completeSchedulerFailure(err)
	}
}

func (t *taskBase) completeSchedulerFailure(err error) {
	cp := t.ensureCP()
	cp.exMu.Lock()
	if cp.exHolder == nil {
		cp.exHolder = newExceptionHolder(t.ID())
	}
	cp.exHolder.add(fmt.Errorf("%s: scheduler failed to queue task: %w", Namespace, err), false)
	cp.exMu.Unlock()
	t.finishStageTwo()
}

// execute is the scheduler's entry point into a task (spec.md §4.3). It
// asserts exactly-once invocation, publishes the task into the ambient
// "current task" slot for the duration of the body, and calls Finish when
// the body returns (including on panic).
func (t *taskBase) execute(ctx context.Context) {
	cur := t.st.load()
	if cur&stDelegateInvoked != 0 && cur&stCanceled == 0 {
		cp := t.ensureCP()
		cp.exMu.Lock()
		if cp.exHolder == nil {
			cp.exHolder = newExceptionHolder(t.ID())
		}
		cp.exHolder.add(ErrSchedulerMisbehavior, false)
		cp.exMu.Unlock()
		t.finish(false)
		return
	}

	if cur&stCanceled != 0 {
		t.finish(false)
		return
	}

	t.st.or(stDelegateInvoked)

	runCtx := withCurrentTask(ctx, t)

	func() {
		defer func() {
			if r := recover(); r != nil {
				classifyAndCapture(t, panicToError(r))
			}
		}()
		t.invoke(runCtx)
	}()

	t.finish(true)
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("%s: task panicked: %w", Namespace, err)
	}
	return fmt.Errorf("%s: task panicked: %v", Namespace, r)
}

// classifyAndCapture records err against t's exception holder, recognizing
// an OperationCanceledError that acknowledges t's own (already-requested)
// token as cancellation rather than fault (spec.md §4.5 "Acknowledgement").
func classifyAndCapture(t *taskBase, err error) {
	cp := t.ensureCP()

	var oce *OperationCanceledError
	if errors.As(err, &oce) && t.token != nil && oce.Token == t.token && t.token.IsRequested() {
		t.st.or(stCancellationAcknowledged)
		cp.exMu.Lock()
		if cp.exHolder == nil {
			cp.exHolder = newExceptionHolder(t.ID())
		}
		cp.exHolder.add(err, true)
		cp.exMu.Unlock()
		return
	}

	cp.exMu.Lock()
	if cp.exHolder == nil {
		cp.exHolder = newExceptionHolder(t.ID())
	}
	cp.exHolder.add(err, false)
	cp.exMu.Unlock()
}

// finish implements spec.md §4.3's two-stage completion: decrement the
// child countdown if the body ran, publishing WAITING_ON_CHILDREN and
// returning if children remain outstanding, else proceeding to stage two.
func (t *taskBase) finish(userDelegateRan bool) {
	if userDelegateRan {
		cp := t.ensureCP()
		if cp.countdown.Add(-1) != 0 {
			t.st.or(stWaitingOnChildren)
			return
		}
	}
	t.finishStageTwo()
}

// finishStageTwo gathers exceptional children, classifies and publishes the
// terminal state, signals waiters, deregisters cancellation, then proceeds
// to stage three: release the body and parent references and drain
// continuations (spec.md §4.3).
func (t *taskBase) finishStageTwo() {
	cp := t.ensureCP()

	for _, child := range cp.drainExceptionalChildren() {
		if child.st.has(stExceptionObservedByParent) {
			continue
		}
		if childCP := child.peekCP(); childCP != nil && childCP.exHolder != nil {
			if e := childCP.exHolder.observe(); e != nil {
				_, hasCancel := childCP.exHolder.classify()
				cp.exMu.Lock()
				if cp.exHolder == nil {
					cp.exHolder = newExceptionHolder(t.ID())
				}
				cp.exHolder.add(e, hasCancel)
				cp.exMu.Unlock()
			}
		}
		child.st.or(stExceptionObservedByParent)
	}

	var hasFault, hasCancel bool
	if cp.exHolder != nil {
		hasFault, hasCancel = cp.exHolder.classify()
	}

	var bit uint32
	switch {
	case hasFault:
		bit = stFaulted
	case hasCancel:
		bit = stCanceled
	default:
		bit = stRanToCompletion
	}
	t.st.or(bit)
	cp.signalDone()

	if cp.cancelReg != nil {
		cp.cancelReg.Dispose()
		cp.cancelReg = nil
	}

	t.invoke = nil
	parent := t.parent
	t.parent = nil
	if parent != nil {
		parent.onChildCompleted(t)
	}

	t.cont.finish()
}

// onChildCompleted is called by an attached child on its own completion
// (spec.md §4.7): it records the child in the exceptional-children list if
// it faulted, decrements the countdown, and proceeds to the parent's own
// stage two once the countdown reaches zero.
func (p *taskBase) onChildCompleted(child *taskBase) {
	pcp := p.ensureCP()
	if child.st.has(stFaulted) {
		pcp.addExceptionalChild(child)
	}
	if pcp.countdown.Add(-1) == 0 {
		p.finishStageTwo()
	}
}

// InternalCancel is the sideways entry point driven by a cancellation
// token's callback (spec.md §4.5). dequeueOnly distinguishes the
// Register-callback path (false) from a scheduler-driven TryDequeue-only
// probe (true, used by schedulers that RequiresAtomicStartTransition).
func (t *taskBase) InternalCancel(dequeueOnly bool) {
	cp := t.ensureCP()
	cp.internalCancelRequested.Store(true)

	canceled := false

	if t.st.has(stStarted) {
		if t.scheduledWork != nil {
			if sch := t.getScheduler(); sch != nil && sch.TryDequeue(t.scheduledWork) {
				if t.st.atomicStateUpdate(stCanceled, stDelegateInvoked|stCanceled) {
					canceled = true
				}
			}
		}
	} else {
		sch := t.getScheduler()
		if sch == nil {
			if t.st.atomicStateUpdate(stCanceled, stDelegateInvoked|stCanceled|stCompletionReserved|stCompletedMask) {
				canceled = true
			}
		} else if sch.RequiresAtomicStartTransition() && dequeueOnly {
			if t.st.atomicStateUpdate(stCanceled, stDelegateInvoked|stCanceled) {
				canceled = true
			}
		}
	}

	if canceled {
		cp.exMu.Lock()
		if cp.exHolder == nil {
			cp.exHolder = newExceptionHolder(t.ID())
		}
		cp.exHolder.add(&OperationCanceledError{Token: t.token}, true)
		cp.exMu.Unlock()
		t.finishStageTwo()
	}
}

// Dispose is permitted only in a terminal state (spec.md §3 "Lifecycle").
func (t *taskBase) Dispose() error {
	if !t.st.isCompleted() {
		return ErrDisposeNotCompleted
	}
	if !t.disposed.CompareAndSwap(false, true) {
		return ErrAlreadyDisposed
	}
	t.st.or(stDisposed)
	return nil
}

// attachIfNeeded implements spec.md §4.7: a task constructed with
// AttachedToParent and an ambient current task on ctx (that does not itself
// deny child attachment) becomes that task's child, incrementing its
// parent's completion countdown.
func attachIfNeeded(ctx context.Context, child *taskBase, opts uint32) {
	if opts&optAttachedToParent == 0 {
		return
	}
	parent := currentTaskFromContext(ctx)
	if parent == nil {
		return
	}
	if parent.creationOpts&optDenyChildAttach != 0 {
		return
	}
	child.parent = parent
	parent.ensureCP().countdown.Add(1)
}

// taskOptions is the builder state behind TaskOption (spec.md §6 "Creation
// options").
type taskOptions struct {
	flags uint32
	token *CancelToken
	state any
}

// TaskOption configures task construction.
type TaskOption func(*taskOptions)

func WithPreferFairness() TaskOption { return func(o *taskOptions) { o.flags |= optPreferFairness } }
func WithLongRunning() TaskOption    { return func(o *taskOptions) { o.flags |= optLongRunning } }
func WithAttachedToParent() TaskOption {
	return func(o *taskOptions) { o.flags |= optAttachedToParent }
}
func WithDenyChildAttach() TaskOption { return func(o *taskOptions) { o.flags |= optDenyChildAttach } }
func WithHideScheduler() TaskOption   { return func(o *taskOptions) { o.flags |= optHideScheduler } }
func WithRunContinuationsAsynchronously() TaskOption {
	return func(o *taskOptions) { o.flags |= optRunContinuationsAsynchronously }
}
func WithCancelToken(tok *CancelToken) TaskOption { return func(o *taskOptions) { o.token = tok } }
func WithState(state any) TaskOption              { return func(o *taskOptions) { o.state = state } }

// finalizeConstruction finishes constructing tb after its invoke has been
// set: applying options, resolving parent attachment, handling an
// already-requested token (which completes the task immediately as
// Canceled without ever scheduling it, per spec.md §4.5), and otherwise
// registering the cancellation callback.
func finalizeConstruction(tb *taskBase, ctx context.Context, o taskOptions, beginsWaitingForActivation bool) {
	tb.creationOpts = o.flags
	tb.token = o.token
	tb.asyncState = o.state

	attachIfNeeded(ctx, tb, o.flags)

	if beginsWaitingForActivation {
		tb.st.or(stWaitingForActivation)
	}

	if o.token == nil {
		return
	}

	if o.token.IsRequested() {
		cp := tb.ensureCP()
		cp.exMu.Lock()
		if cp.exHolder == nil {
			cp.exHolder = newExceptionHolder(tb.ID())
		}
		cp.exHolder.add(&OperationCanceledError{Token: o.token}, true)
		cp.exMu.Unlock()
		tb.finishStageTwo()
		return
	}

	reg := o.token.Register(func(any) { tb.InternalCancel(false) }, nil)
	cp := tb.ensureCP()
	cp.cancelReg = reg
}

// Task is a handle to a deferred computation producing a value of type R
// (spec.md GLOSSARY). A plain, non-result-bearing task is Task[NoResult]
// rather than a distinct type (spec.md §9).
type Task[R any] struct {
	taskBase
	result R
}

// New constructs a task with the given body and options but does not start
// it. fn must be one of:
//
//	func(context.Context) (R, error)
//	func(context.Context) R
//	func(context.Context) error
//	func(context.Context)
func New[R any](ctx context.Context, fn any, opts ...TaskOption) *Task[R] {
	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}
	t := &Task[R]{}
	t.invoke = buildInvoke[R](t, fn)
	finalizeConstruction(&t.taskBase, ctx, o, false)
	return t
}

func buildInvoke[R any](t *Task[R], fn any) func(context.Context) {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				classifyAndCapture(&t.taskBase, panicToError(r))
			}
		}()
		switch f := fn.(type) {
		case func(context.Context) (R, error):
			res, err := f(ctx)
			if err != nil {
				classifyAndCapture(&t.taskBase, err)
			} else {
				t.result = res
			}
		case func(context.Context) R:
			t.result = f(ctx)
		case func(context.Context) error:
			if err := f(ctx); err != nil {
				classifyAndCapture(&t.taskBase, err)
			}
		case func(context.Context):
			f(ctx)
		default:
			classifyAndCapture(&t.taskBase, errors.New(Namespace+": invalid task function type"))
		}
	}
}

// Start hands the task to scheduler s.
func (t *Task[R]) Start(s Scheduler) error { return t.taskBase.Start(s) }

// RunSynchronously asks s to inline the task, blocking the caller if it
// declines.
func (t *Task[R]) RunSynchronously(s Scheduler) error { return t.taskBase.RunSynchronously(s) }

// Dispose releases the task; permitted only once it has completed.
func (t *Task[R]) Dispose() error { return t.taskBase.Dispose() }

// Result blocks until the task completes (equivalent to Wait(-1, nil)) and
// then returns its value, or the zero value and an error if the task
// faulted or was canceled. Calling Result marks the task's exception
// observed.
func (t *Task[R]) Result() (R, error) {
	if err := t.Wait(-1, nil); err != nil {
		var zero R
		return zero, err
	}
	return t.result, nil
}

// Exception returns the task's captured aggregate failure without blocking,
// or nil if the task has not faulted/been canceled (or hasn't completed
// yet). Unlike Result, it does not mark the exception observed; callers
// that want to suppress the unobserved-exception sink should use Result or
// Wait instead.
func (t *Task[R]) Exception() error {
	cp := t.peekCP()
	if cp == nil || cp.exHolder == nil {
		return nil
	}
	return cp.exHolder.peek()
}

// ContinueWith schedules fn to run once the task completes, returning a new
// non-result task (spec.md §6). fn must be one of:
//
//	func(context.Context, *Task[R])
//	func(context.Context, *Task[R]) error
//
// Use the package-level ContinueWith function for a continuation that
// produces a different result type.
func (t *Task[R]) ContinueWith(fn any, opts ...ContinuationOption) *Task[NoResult] {
	return ContinueWith[R, NoResult](t, fn, opts...)
}
