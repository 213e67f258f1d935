package tasks

import (
	"sync"
	"sync/atomic"
)

// continuationEntry is one registered continuation. trusted entries are
// runtime-internal (a completion-event setter, a combinator's countdown)
// and always run inline on the completer's thread; everything else is a
// caller-supplied continuation that is queued back to a Scheduler unless it
// was registered with ExecuteSynchronously (spec.md §4.4).
type continuationEntry struct {
	run                  func()
	trusted              bool
	executeSynchronously bool
	scheduler            Scheduler
}

func (e *continuationEntry) isAsync() bool { return !e.trusted && !e.executeSynchronously }

func (e *continuationEntry) dispatch() {
	if e.trusted || e.executeSynchronously || e.scheduler == nil {
		e.run()
		return
	}
	if err := e.scheduler.Queue(&ScheduledWork{Run: e.run}); err != nil {
		// Scheduler refused the continuation; run it inline rather than
		// dropping it silently.
		e.run()
	}
}

// sentinelT is the completion sentinel of spec.md §4.4/GLOSSARY: stored in
// the continuation slot once a task completes, so that any further
// registration attempt observes it and must run the continuation itself.
type sentinelT struct{}

type contSlot struct {
	val any // nil-free: either *continuationEntry, *continuationList, or sentinelT
}

// continuationList backs the "list" state of the continuation slot. Once
// drained (by finish), no further entry may be appended to it — add()
// detects that and reports "not queued" so the caller runs the continuation
// itself, matching the race rule in spec.md §4.4.
type continuationList struct {
	mu      sync.Mutex
	items   []*continuationEntry
	drained bool
}

// continuationObject is the single atomic reference described in spec.md §3
// ("Continuation object"): progression is monotone, null -> single -> list
// -> sentinel, with list permitted to stay list and any state permitted to
// jump directly to sentinel on completion.
type continuationObject struct {
	slot atomic.Pointer[contSlot]
}

// add registers entry. It returns true if entry was installed and will be
// fired by finish(); it returns false if the task already completed
// (slot holds the sentinel, or raced to it during this call) — per spec.md
// §4.4, the caller MUST then run entry itself.
func (c *continuationObject) add(entry *continuationEntry) bool {
	for {
		cur := c.slot.Load()
		if cur == nil {
			next := &contSlot{val: entry}
			if c.slot.CompareAndSwap(nil, next) {
				return true
			}
			continue
		}

		switch v := cur.val.(type) {
		case sentinelT:
			return false

		case *continuationEntry:
			next := &contSlot{val: &continuationList{items: []*continuationEntry{v, entry}}}
			if c.slot.CompareAndSwap(cur, next) {
				return true
			}
			continue

		case *continuationList:
			v.mu.Lock()
			if v.drained {
				v.mu.Unlock()
				return false
			}
			v.items = append(v.items, entry)
			v.mu.Unlock()
			return true

		default:
			panic("tasks: corrupt continuation slot")
		}
	}
}

// remove deregisters entry if still pending. A single occupant is promoted
// to an (empty) list rather than reverting to nil, preserving the
// once-grown-never-shrinks-through-null invariant of spec.md §4.4.
func (c *continuationObject) remove(entry *continuationEntry) {
	for {
		cur := c.slot.Load()
		if cur == nil {
			return
		}

		switch v := cur.val.(type) {
		case sentinelT:
			return

		case *continuationEntry:
			if v != entry {
				return
			}
			next := &contSlot{val: &continuationList{}}
			if c.slot.CompareAndSwap(cur, next) {
				return
			}
			continue

		case *continuationList:
			v.mu.Lock()
			if !v.drained {
				for i, e := range v.items {
					if e == entry {
						v.items[i] = nil
						break
					}
				}
			}
			v.mu.Unlock()
			return

		default:
			panic("tasks: corrupt continuation slot")
		}
	}
}

// finish atomically exchanges the slot for the sentinel and dispatches
// whatever was registered, in two passes: asynchronous (queued-to-scheduler)
// continuations first, then trusted/synchronous ones, matching spec.md §4.4.
func (c *continuationObject) finish() {
	sentinel := &contSlot{val: sentinelT{}}
	prev := c.slot.Swap(sentinel)
	if prev == nil {
		return
	}

	switch v := prev.val.(type) {
	case sentinelT:
		return

	case *continuationEntry:
		v.dispatch()

	case *continuationList:
		v.mu.Lock()
		snapshot := make([]*continuationEntry, len(v.items))
		copy(snapshot, v.items)
		v.drained = true
		v.mu.Unlock()

		for _, e := range snapshot {
			if e != nil && e.isAsync() {
				e.dispatch()
			}
		}
		for _, e := range snapshot {
			if e != nil && !e.isAsync() {
				e.dispatch()
			}
		}

	default:
		panic("tasks: corrupt continuation slot")
	}
}
