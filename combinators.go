package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// continuationOptions is the builder state behind ContinuationOption
// (spec.md §6 "Continuation options").
type continuationOptions struct {
	onlyOnRanToCompletion bool
	onlyOnFaulted         bool
	onlyOnCanceled        bool
	notOnRanToCompletion  bool
	notOnFaulted          bool
	notOnCanceled         bool
	executeSynchronously  bool
	lazyCancellation      bool
	token                 *CancelToken
	scheduler             Scheduler
}

// ContinuationOption configures a continuation registered via ContinueWith.
type ContinuationOption func(*continuationOptions)

func OnlyOnRanToCompletion() ContinuationOption {
	return func(o *continuationOptions) { o.onlyOnRanToCompletion = true }
}
func OnlyOnFaulted() ContinuationOption {
	return func(o *continuationOptions) { o.onlyOnFaulted = true }
}
func OnlyOnCanceled() ContinuationOption {
	return func(o *continuationOptions) { o.onlyOnCanceled = true }
}
func NotOnRanToCompletion() ContinuationOption {
	return func(o *continuationOptions) { o.notOnRanToCompletion = true }
}
func NotOnFaulted() ContinuationOption {
	return func(o *continuationOptions) { o.notOnFaulted = true }
}
func NotOnCanceled() ContinuationOption {
	return func(o *continuationOptions) { o.notOnCanceled = true }
}
func WithExecuteSynchronously() ContinuationOption {
	return func(o *continuationOptions) { o.executeSynchronously = true }
}

// WithLazyCancellation defers the continuation's own token check until its
// body runs instead of short-circuiting it to Canceled the moment the
// antecedent completes (spec.md §6).
func WithLazyCancellation() ContinuationOption {
	return func(o *continuationOptions) { o.lazyCancellation = true }
}
func WithContinuationCancelToken(tok *CancelToken) ContinuationOption {
	return func(o *continuationOptions) { o.token = tok }
}
func WithContinuationScheduler(s Scheduler) ContinuationOption {
	return func(o *continuationOptions) { o.scheduler = s }
}

// continuationGateOK applies the Only/Not filters of spec.md §6 against the
// antecedent's terminal status.
func continuationGateOK(antStatus Status, o continuationOptions) bool {
	anyOnly := o.onlyOnRanToCompletion || o.onlyOnFaulted || o.onlyOnCanceled
	if anyOnly {
		switch antStatus {
		case StatusRanToCompletion:
			if !o.onlyOnRanToCompletion {
				return false
			}
		case StatusFaulted:
			if !o.onlyOnFaulted {
				return false
			}
		case StatusCanceled:
			if !o.onlyOnCanceled {
				return false
			}
		}
	}
	switch antStatus {
	case StatusRanToCompletion:
		if o.notOnRanToCompletion {
			return false
		}
	case StatusFaulted:
		if o.notOnFaulted {
			return false
		}
	case StatusCanceled:
		if o.notOnCanceled {
			return false
		}
	}
	return true
}

// markCanceledNoRun completes tb as Canceled without ever invoking its body,
// used both for continuation-option mismatches and a continuation whose own
// token fired before activation (spec.md §6).
func markCanceledNoRun(tb *taskBase, token *CancelToken) {
	cp := tb.ensureCP()
	cp.exMu.Lock()
	if cp.exHolder == nil {
		cp.exHolder = newExceptionHolder(tb.ID())
	}
	cp.exHolder.add(&OperationCanceledError{Token: token}, true)
	cp.exMu.Unlock()
	tb.finishStageTwo()
}

// ContinueWith registers fn to run once ant completes, subject to opts, and
// returns a new task carrying a possibly different result type (spec.md §6).
// fn must be one of:
//
//	func(context.Context, *Task[R]) (R2, error)
//	func(context.Context, *Task[R]) R2
//	func(context.Context, *Task[R]) error
//	func(context.Context, *Task[R])
//
// Go cannot add a type parameter to a method, so this is a package-level
// function; Task[R].ContinueWith wraps it for the common same-result case.
func ContinueWith[R, R2 any](ant *Task[R], fn any, opts ...ContinuationOption) *Task[R2] {
	var o continuationOptions
	for _, opt := range opts {
		opt(&o)
	}

	t2 := &Task[R2]{}
	t2.st.or(stContinuation)
	t2.token = o.token

	sched := o.scheduler
	if sched == nil {
		sched = DefaultScheduler()
	}

	run := func() {
		if !o.lazyCancellation && o.token.IsRequested() {
			markCanceledNoRun(&t2.taskBase, o.token)
			return
		}
		if !continuationGateOK(ant.Status(), o) {
			markCanceledNoRun(&t2.taskBase, o.token)
			return
		}
		t2.invoke = buildContinuationInvoke[R, R2](ant, t2, fn)
		t2.schedulerSlot.Store(&schedWrap{s: sched})
		t2.doActivate(sched, context.Background())
	}

	entry := &continuationEntry{run: run, executeSynchronously: o.executeSynchronously, scheduler: sched}
	if !ant.cont.add(entry) {
		entry.dispatch()
	}
	return t2
}

func buildContinuationInvoke[R, R2 any](ant *Task[R], t2 *Task[R2], fn any) func(context.Context) {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				classifyAndCapture(&t2.taskBase, panicToError(r))
			}
		}()
		if t2.token.IsRequested() {
			classifyAndCapture(&t2.taskBase, &OperationCanceledError{Token: t2.token})
			return
		}
		switch f := fn.(type) {
		case func(context.Context, *Task[R]) (R2, error):
			res, err := f(ctx, ant)
			if err != nil {
				classifyAndCapture(&t2.taskBase, err)
			} else {
				t2.result = res
			}
		case func(context.Context, *Task[R]) R2:
			t2.result = f(ctx, ant)
		case func(context.Context, *Task[R]) error:
			if err := f(ctx, ant); err != nil {
				classifyAndCapture(&t2.taskBase, err)
			}
		case func(context.Context, *Task[R]):
			f(ctx, ant)
		default:
			classifyAndCapture(&t2.taskBase, errors.New(Namespace+": invalid continuation function type"))
		}
	}
}

// registerTrustedContinuation attaches a runtime-internal continuation that
// always runs inline on the completer's goroutine (spec.md §3 "trusted"
// continuations), falling back to an immediate call if ant already
// completed.
func registerTrustedContinuation(ant *taskBase, fn func()) {
	entry := &continuationEntry{run: fn, trusted: true}
	if !ant.cont.add(entry) {
		entry.dispatch()
	}
}

func newPromiseTask[R any]() *Task[R] {
	t := &Task[R]{}
	t.st.or(stPromise)
	t.ensureCP()
	return t
}

// adoptFailure copies err into tb's exception holder, classifying it as
// cancellation iff it is an *OperationCanceledError, and drives tb to its
// terminal state.
func adoptFailure(tb *taskBase, err error) {
	var oce *OperationCanceledError
	isCancel := errors.As(err, &oce)
	cp := tb.ensureCP()
	cp.exMu.Lock()
	if cp.exHolder == nil {
		cp.exHolder = newExceptionHolder(tb.ID())
	}
	cp.exHolder.add(err, isCancel)
	cp.exMu.Unlock()
	tb.finishStageTwo()
}

// WhenAll returns a task that completes once every task in tasks has
// completed (spec.md §4.8). Its result is the ordered slice of each input's
// result. If any input faulted, the combined task is Faulted and aggregates
// only the faulted inputs' errors; otherwise, if any input was canceled, it
// is Canceled (see finishWhenAll).
func WhenAll[R any](tasks ...*Task[R]) *Task[[]R] {
	t2 := newPromiseTask[[]R]()

	if len(tasks) == 0 {
		t2.result = nil
		t2.st.or(stRanToCompletion)
		t2.ensureCP().signalDone()
		t2.cont.finish()
		return t2
	}

	results := make([]R, len(tasks))
	var remaining atomic.Int64
	remaining.Store(int64(len(tasks)))

	for i, tb := range tasks {
		i, tb := i, tb
		registerTrustedContinuation(&tb.taskBase, func() {
			results[i] = tb.result
			if remaining.Add(-1) == 0 {
				t2.result = results
				finishWhenAll(t2, tasks)
			}
		})
	}
	return t2
}

// finishWhenAll gathers each constituent's outcome and drives t2 to its
// terminal state. Per spec.md §4.8/§8 scenario 5, a Faulted WhenAll's
// aggregate contains only the genuinely faulted constituents' errors —
// a sibling that merely canceled is subsumed, not concatenated alongside
// the fault — so the overall fault/cancel classification is decided first,
// in a pass over every constituent, before any error is added to t2's own
// holder.
func finishWhenAll[R any](t2 *Task[[]R], tasks []*Task[R]) {
	type outcome struct {
		err       error
		hasFault  bool
		hasCancel bool
	}
	outcomes := make([]outcome, 0, len(tasks))
	var anyFault bool

	for _, tb := range tasks {
		tcp := tb.peekCP()
		if tcp == nil {
			continue
		}
		tcp.exMu.Lock()
		h := tcp.exHolder
		tcp.exMu.Unlock()
		if h == nil {
			continue
		}
		err := h.observe()
		if err == nil {
			continue
		}
		hasFault, hasCancel := h.classify()
		outcomes = append(outcomes, outcome{err: err, hasFault: hasFault, hasCancel: hasCancel})
		anyFault = anyFault || hasFault
	}

	cp := t2.ensureCP()
	for _, o := range outcomes {
		if anyFault && !o.hasFault {
			continue
		}
		cp.exMu.Lock()
		if cp.exHolder == nil {
			cp.exHolder = newExceptionHolder(t2.ID())
		}
		cp.exHolder.add(o.err, o.hasCancel && !o.hasFault)
		cp.exMu.Unlock()
	}
	t2.finishStageTwo()
}

// WhenAny returns a task that completes as soon as the first task in tasks
// completes, with that task itself as the result (spec.md §4.8).
func WhenAny[R any](tasks ...*Task[R]) (*Task[*Task[R]], error) {
	if len(tasks) == 0 {
		return nil, ErrNoInputs
	}
	t2 := newPromiseTask[*Task[R]]()
	var once sync.Once
	for _, tb := range tasks {
		tb := tb
		registerTrustedContinuation(&tb.taskBase, func() {
			once.Do(func() {
				t2.result = tb
				t2.st.or(stRanToCompletion)
				t2.ensureCP().signalDone()
				t2.cont.finish()
			})
		})
	}
	return t2, nil
}

// Unwrap flattens a task-producing task into a task of its inner result
// (spec.md §4.8), propagating faults/cancellation from either level.
func Unwrap[R any](outer *Task[*Task[R]]) *Task[R] {
	t2 := newPromiseTask[R]()
	registerTrustedContinuation(&outer.taskBase, func() {
		if err := outer.observeOutcome(); err != nil {
			adoptFailure(&t2.taskBase, err)
			return
		}
		inner := outer.result
		if inner == nil {
			t2.st.or(stRanToCompletion)
			t2.ensureCP().signalDone()
			t2.cont.finish()
			return
		}
		registerTrustedContinuation(&inner.taskBase, func() {
			if err := inner.observeOutcome(); err != nil {
				adoptFailure(&t2.taskBase, err)
				return
			}
			t2.result = inner.result
			t2.st.or(stRanToCompletion)
			t2.ensureCP().signalDone()
			t2.cont.finish()
		})
	})
	return t2
}

// Delay returns a promise that completes, with no result, after d elapses
// or opts' token is canceled, whichever comes first (spec.md §4.8: "a
// promise armed with a timer firing after the duration and with a token
// registration; whichever fires first completes the promise"). The timer
// and the token race directly in the goroutine below rather than through
// finalizeConstruction's generic InternalCancel path: that path resolves a
// cancellation by asking the task's Scheduler to dequeue it, which only
// applies to a task with a body actually queued on a Scheduler, never to a
// promise armed with nothing but a timer.
func Delay(ctx context.Context, d time.Duration, opts ...TaskOption) *Task[NoResult] {
	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}
	token := o.token

	t := &Task[NoResult]{}
	t.st.or(stPromise)
	bare := o
	bare.token = nil
	finalizeConstruction(&t.taskBase, ctx, bare, true)

	go func() {
		timer := time.NewTimer(d)
		defer timer.Stop()

		var tokenFired <-chan struct{}
		if token.CanBeCanceled() {
			ch := make(chan struct{})
			reg := token.Register(func(any) { close(ch) }, nil)
			defer reg.Dispose()
			tokenFired = ch
		}

		select {
		case <-timer.C:
			t.TrySetResult(NoResult{})
		case <-tokenFired:
			t.TrySetCanceled(token)
		case <-ctx.Done():
			t.TrySetCanceled(nil)
		}
	}()

	return t
}

// Run constructs a task from fn and immediately starts it on the default
// scheduler (spec.md §4.8 "Run"), the common case where the caller does not
// need to pick a specific Scheduler.
func Run[R any](ctx context.Context, fn any, opts ...TaskOption) *Task[R] {
	t := New[R](ctx, fn, opts...)
	_ = t.Start(DefaultScheduler())
	return t
}
