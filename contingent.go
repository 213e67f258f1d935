package tasks

import (
	"context"
	"sync"
	"sync/atomic"
)

// contingentProperties is the lazily-allocated block of spec.md §3: state
// required only when a task has non-default behavior (cancellation,
// children, waiters). It is published into its owning taskBase via CAS; a
// lost race discards the loser's allocation (spec.md §5).
type contingentProperties struct {
	execCtx context.Context // captured execution context, spec.md §9 "Execution-context flow"

	done chan struct{} // completion event; closed exactly once at stage two

	exMu      sync.Mutex
	exHolder  *exceptionHolder
	cancelReg CancelRegistration
	internalCancelRequested atomic.Bool

	// countdown is the child-completion countdown: initialized to 1,
	// incremented once per attached child, decremented at child completion
	// (spec.md §3, §4.7).
	countdown atomic.Int64

	exChildMu          sync.Mutex
	exceptionalChildren []*taskBase
}

func newContingentProperties() *contingentProperties {
	cp := &contingentProperties{done: make(chan struct{})}
	cp.countdown.Store(1)
	return cp
}

// ensureCP returns t's contingent properties, allocating and publishing them
// on first use if necessary.
func (t *taskBase) ensureCP() *contingentProperties {
	if cp := t.cp.Load(); cp != nil {
		return cp
	}
	candidate := newContingentProperties()
	if t.cp.CompareAndSwap(nil, candidate) {
		return candidate
	}
	return t.cp.Load()
}

// peekCP returns t's contingent properties without allocating them, or nil.
func (t *taskBase) peekCP() *contingentProperties {
	return t.cp.Load()
}

func (cp *contingentProperties) signalDone() {
	close(cp.done)
}

func (cp *contingentProperties) addExceptionalChild(child *taskBase) {
	cp.exChildMu.Lock()
	cp.exceptionalChildren = append(cp.exceptionalChildren, child)
	cp.exChildMu.Unlock()
}

func (cp *contingentProperties) drainExceptionalChildren() []*taskBase {
	cp.exChildMu.Lock()
	defer cp.exChildMu.Unlock()
	out := cp.exceptionalChildren
	cp.exceptionalChildren = nil
	return out
}
