package tasks

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// unobservedSink receives exception holders that were garbage collected
// without ever having been observed (spec.md §3, §7). It defaults to a
// logrus-based sink; embedders can replace it (e.g. in tests) to capture the
// failure deterministically instead of relying on finalizer/GC timing.
var unobservedSink atomic.Pointer[func(taskID uint64, err error)]

func init() {
	var f func(taskID uint64, err error) = defaultUnobservedSink
	unobservedSink.Store(&f)
}

func defaultUnobservedSink(taskID uint64, err error) {
	logrus.WithFields(logrus.Fields{
		"task_id": taskID,
		"error":   err,
	}).Error("tasks: unobserved task exception")
}

// SetUnobservedExceptionSink overrides where unobserved task failures are
// reported. Passing nil restores the default logrus-based sink.
func SetUnobservedExceptionSink(fn func(taskID uint64, err error)) {
	if fn == nil {
		fn = defaultUnobservedSink
	}
	unobservedSink.Store(&fn)
}

// exceptionHolder aggregates one or many captured failures (spec.md §3). It
// tracks, per add, whether the failure represents cancellation (so stage
// two can classify Faulted-wins-over-Canceled per §4.3), and whether the
// holder has ever been observed by a consumer.
type exceptionHolder struct {
	mu        sync.Mutex
	errs      *multierror.Error
	hasFault  bool
	hasCancel bool
	observed  atomic.Bool
	taskID    uint64
}

func newExceptionHolder(taskID uint64) *exceptionHolder {
	h := &exceptionHolder{taskID: taskID}
	runtime.SetFinalizer(h, finalizeExceptionHolder)
	return h
}

func finalizeExceptionHolder(h *exceptionHolder) {
	if h.observed.Load() {
		return
	}
	if agg := h.aggregateLocked(); agg != nil {
		if f := unobservedSink.Load(); f != nil {
			(*f)(h.taskID, agg)
		}
	}
}

// add records err. isCancel marks err as representing cancellation (an
// acknowledged OperationCanceledError tied to the task's own token, or a
// child's purely-cancellation failure adopted by a parent).
func (h *exceptionHolder) add(err error, isCancel bool) {
	if err == nil {
		return
	}
	h.mu.Lock()
	h.errs = multierror.Append(h.errs, err)
	if isCancel {
		h.hasCancel = true
	} else {
		h.hasFault = true
	}
	h.mu.Unlock()
}

func (h *exceptionHolder) aggregateLocked() error {
	if h.errs == nil || len(h.errs.Errors) == 0 {
		return nil
	}
	return h.errs.ErrorOrNil()
}

// observe marks the holder observed (suppressing the unobserved-exception
// sink) and returns the aggregated error, or nil if nothing was captured.
func (h *exceptionHolder) observe() error {
	h.observed.Store(true)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aggregateLocked()
}

// peek returns the aggregated error without marking the holder observed.
func (h *exceptionHolder) peek() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.aggregateLocked()
}

// classify reports whether any captured failure is a genuine fault, and
// whether any represents cancellation. Both may be true (e.g. a parent
// adopting one faulted and one canceled child); stage two gives faulted
// priority per spec.md §4.3.
func (h *exceptionHolder) classify() (hasFault, hasCancel bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hasFault, h.hasCancel
}
