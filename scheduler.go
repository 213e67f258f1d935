package tasks

// Scheduler is the pluggable work scheduler of spec.md §1 and §4.9: an
// external collaborator that accepts tasks and may inline-execute them. The
// runtime only depends on this four-method capability set; two concrete
// implementations (PoolScheduler, FIFOScheduler) are provided, each grounded
// on a different part of the teacher's worker-reuse code (see scheduler_pool.go,
// scheduler_fifo.go).
type Scheduler interface {
	// Queue must eventually invoke work.Run exactly once, on any thread, at
	// any later time. Returning an error here is captured by the runtime as
	// a scheduler failure (spec.md §7 item 2) and the task transitions to
	// Faulted without its body having run.
	Queue(work *ScheduledWork) error

	// TryInline runs work.Run on the calling goroutine if the scheduler
	// allows it, returning true on success. wasPreviouslyQueued tells the
	// scheduler whether work is already sitting in its queue (so it can,
	// for instance, avoid double-dequeue bookkeeping). Returning false must
	// not have executed work.Run or mutated any state.
	TryInline(work *ScheduledWork, wasPreviouslyQueued bool) bool

	// TryDequeue removes work from the queue if it is still queued and has
	// not started executing. It must not race-remove after inline start.
	TryDequeue(work *ScheduledWork) bool

	// RequiresAtomicStartTransition instructs the runtime to guard
	// execution entry with a compare-and-swap against cancellation
	// (spec.md §4.3, §4.5 step 2).
	RequiresAtomicStartTransition() bool
}

// ScheduledWork is the unit a Scheduler queues, inlines, or dequeues. ID is
// provided for diagnostics/metrics only; Run is the entry point the
// scheduler must invoke.
type ScheduledWork struct {
	ID  uint64
	Run func()
}

// NoResult is the result type of a plain (non-result-bearing) task,
// mirroring spec.md §9's guidance that Task vs Task<T> become "a generic
// specialization, not a subclass" rather than two distinct hierarchies.
type NoResult = struct{}
