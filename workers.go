package tasks

import (
	"context"
	"sync"
	"sync/atomic"
)

// Workers is a channel-facing facade over the task engine (a supplemented
// feature beyond the bare Task API): AddTask constructs and starts a Task
// for fn, and its result or error is delivered on GetResults/GetErrors as
// the task completes.
type Workers[R any] interface {
	// Start begins delivering results/errors for tasks added so far and
	// allows further AddTask calls to proceed; safe to call more than once.
	Start()

	// AddTask constructs a Task[R] from fn (same accepted shapes as New)
	// and starts it on the facade's scheduler. It returns an error only if
	// the facade has not been started or has been closed.
	AddTask(fn any, opts ...TaskOption) error

	// GetResults returns the channel results are delivered on.
	GetResults() <-chan R

	// GetErrors returns the channel errors are delivered on.
	GetErrors() <-chan error

	// Close stops accepting new tasks, waits for in-flight tasks to
	// complete, then closes the results and errors channels.
	Close()
}

// workersFacade composes three pieces of shutdown/delivery bookkeeping
// directly as its own methods rather than as separate generic collaborators:
// runForwarder (error forwarding), runReorderer (preserve-order replay) and
// Close (the shutdown sequence) all read and write the facade's own fields,
// the same way a Task's continuation machinery (continuation.go) reaches
// straight into taskBase rather than going through an intermediate type.
type workersFacade[R any] struct {
	opts      facadeOptions
	scheduler Scheduler

	ctx    context.Context
	cancel context.CancelFunc

	startOnce sync.Once
	started   atomic.Bool

	nextIndexMu sync.Mutex
	nextIndex   int

	results chan R
	errors  chan error

	// errorsBuf is the internal buffer deliver writes into when StopOnError
	// is set; runForwarder drains it into errors, canceling ctx on the first
	// error and letting only that one through, the same way a promise's
	// completion reservation (promise.go) lets only the first TrySet* win.
	errorsBuf chan error

	inflight       sync.WaitGroup
	forwarderRunWG sync.WaitGroup // tracks runForwarder's own goroutine
	sendWG         sync.WaitGroup // tracks detached senders runForwarder spawns
	closeCh        chan struct{}

	events        chan completionEvent[R] // non-nil only when PreserveOrder is set
	reordererDone chan struct{}

	closeOnce sync.Once
}

// NewWorkers constructs a Workers facade. Tasks added via AddTask run on
// opts' scheduler (DefaultScheduler() if unset).
func NewWorkers[R any](ctx context.Context, opts ...Option) Workers[R] {
	o := defaultFacadeOptions()
	for _, opt := range opts {
		opt(&o)
	}

	sched := o.scheduler
	if sched == nil {
		sched = DefaultScheduler()
	}

	runCtx, cancel := context.WithCancel(ctx)

	w := &workersFacade[R]{
		opts:      o,
		scheduler: sched,
		ctx:       runCtx,
		cancel:    cancel,
		closeCh:   make(chan struct{}),
		results:   make(chan R, o.resultsBufferSize),
	}

	if o.stopOnError {
		w.errorsBuf = make(chan error, o.stopOnErrorErrorsBufferSize)
		w.errors = make(chan error, o.errorsBufferSize)
		w.forwarderRunWG.Add(1)
		go func() {
			defer w.forwarderRunWG.Done()
			w.runForwarder()
		}()
	} else {
		w.errors = make(chan error, o.errorsBufferSize)
	}

	if o.preserveOrder {
		w.events = make(chan completionEvent[R], o.resultsBufferSize)
		w.reordererDone = make(chan struct{})
		go func() {
			defer close(w.reordererDone)
			w.runReorderer()
		}()
	}

	if o.startImmediately {
		w.Start()
	}

	return w
}

func (w *workersFacade[R]) Start() {
	w.startOnce.Do(func() { w.started.Store(true) })
}

func (w *workersFacade[R]) AddTask(fn any, opts ...TaskOption) error {
	if !w.started.Load() {
		return ErrInvalidState
	}
	select {
	case <-w.closeCh:
		return ErrInvalidState
	default:
	}

	w.nextIndexMu.Lock()
	idx := w.nextIndex
	w.nextIndex++
	w.nextIndexMu.Unlock()

	t := New[R](w.ctx, fn, opts...)

	w.inflight.Add(1)
	registerTrustedContinuation(&t.taskBase, func() { w.deliver(t, idx) })

	if err := t.Start(w.scheduler); err != nil {
		w.inflight.Done()
		return err
	}
	return nil
}

func (w *workersFacade[R]) deliver(t *Task[R], idx int) {
	defer w.inflight.Done()

	res, err := t.Result()
	if err != nil {
		if w.opts.errorTagging {
			err = newTaskTaggedError(err, t.ID(), idx)
		}
		if w.opts.preserveOrder {
			select {
			case w.events <- completionEvent[R]{idx: idx, id: t.ID(), present: false}:
			case <-w.closeCh:
			}
		}
		target := w.errors
		if w.opts.stopOnError {
			target = w.errorsBuf
		}
		select {
		case target <- err:
		case <-w.closeCh:
		}
		return
	}

	if w.opts.preserveOrder {
		select {
		case w.events <- completionEvent[R]{idx: idx, id: t.ID(), val: res, present: true}:
		case <-w.closeCh:
		}
		return
	}

	select {
	case w.results <- res:
	case <-w.closeCh:
	}
}

// runForwarder drains errorsBuf into errors, canceling the facade's context
// on the first error and forwarding exactly that one. If that first error
// cannot be sent synchronously, it is handed to a detached goroutine
// (tracked by sendWG) that either delivers it once a reader appears or drops
// it once closeCh closes; every error after the first is dropped outright,
// mirroring the single-winner rule a promise's TrySetException enforces
// (promise.go) — only the forwarder's own "forwarded" flag, not a shared
// atomic bit, is needed here because runForwarder is the sole reader of
// errorsBuf.
func (w *workersFacade[R]) runForwarder() {
	forwarded := false
	for {
		select {
		case e := <-w.errorsBuf:
			w.cancel()
			if forwarded {
				continue
			}
			forwarded = true
			select {
			case w.errors <- e:
			default:
				w.sendWG.Add(1)
				go func(err error) {
					defer w.sendWG.Done()
					select {
					case w.errors <- err:
					case <-w.closeCh:
					}
				}(e)
			}
		case <-w.closeCh:
			for {
				select {
				case <-w.errorsBuf:
				default:
					return
				}
			}
		}
	}
}

// runReorderer replays completion events onto results strictly in AddTask
// order, buffering completions that arrive ahead of the cursor and
// advancing past indices that completed without a value (present == false,
// i.e. the task errored). It returns once events is closed, after a
// best-effort flush of whatever contiguous prefix the cursor can still reach
// — a gap left by a completion that never arrived stops the flush there,
// the same way WhenAll.finishWhenAll (combinators.go) only ever reports the
// constituents that actually completed.
func (w *workersFacade[R]) runReorderer() {
	next := 0
	buf := make(map[int]R)
	seenNoRes := make(map[int]struct{})

	flush := func() {
		for {
			if v, ok := buf[next]; ok {
				w.results <- v
				delete(buf, next)
				next++
				continue
			}
			if _, ok := seenNoRes[next]; ok {
				delete(seenNoRes, next)
				next++
				continue
			}
			break
		}
	}

	for ev := range w.events {
		if ev.present {
			buf[ev.idx] = ev.val
		} else {
			seenNoRes[ev.idx] = struct{}{}
		}
		flush()
	}
}

func (w *workersFacade[R]) GetResults() <-chan R { return w.results }
func (w *workersFacade[R]) GetErrors() <-chan error { return w.errors }

// Close runs the shutdown sequence exactly once: cancel the facade's
// context, wait for every in-flight delivery, close closeCh so any blocked
// deliver/runForwarder sends stop waiting, wait for runForwarder and its
// detached senders, then close events (if preserve-order is on) and wait
// for runReorderer to drain it, and finally close results and errors. Each
// step must complete before the next starts, or a later close could race a
// goroutine still trying to use an earlier-closed channel.
func (w *workersFacade[R]) Close() {
	w.closeOnce.Do(func() {
		w.cancel()
		w.inflight.Wait()
		close(w.closeCh)
		w.forwarderRunWG.Wait()
		w.sendWG.Wait()
		if w.opts.preserveOrder {
			close(w.events)
			<-w.reordererDone
		}
		close(w.results)
		close(w.errors)
	})
}
