// Package tasks is an asynchronous task runtime: a Task[R] represents a
// unit of work that may not have completed yet, whether it is still
// running, queued, or already finished with a result, a fault, or a
// cancellation.
//
// Construction and scheduling
//   - New constructs a task from a function without starting it; Start
//     hands it to a Scheduler, RunSynchronously asks the scheduler to run
//     it on the calling goroutine if possible.
//   - Run constructs and starts a task on DefaultScheduler() in one call.
//   - Two Scheduler implementations are provided: PoolScheduler (one
//     goroutine per unit of work, unbounded concurrency) and FIFOScheduler
//     (strict sequential execution). DefaultScheduler is a lazily
//     constructed process-wide PoolScheduler.
//
// Composition
//   - ContinueWith chains a continuation onto a task's completion, gated by
//     ContinuationOptions (OnlyOnFaulted, NotOnCanceled, and so on).
//   - WhenAll, WhenAny, Unwrap, and Delay combine and derive tasks the way
//     their names suggest.
//   - NewPromise and TrySetResult/TrySetException/TrySetCanceled bridge an
//     arbitrary callback-based API into a task.
//
// Cancellation
//   - Cancellation is cooperative: a CancelSource/CancelToken pair (see
//     cancellation.go) is an external signal a task's own function must
//     observe; the runtime only guarantees a task that never started never
//     runs once its token fires.
//
// Batch helpers and the channel facade
//   - RunAll, Map, and ForEach run many task functions to completion and
//     return aggregated results/errors. MapStream, RunStream, and
//     ForEachStream are their streaming counterparts.
//   - NewWorkers exposes a lower-level channel-facing view (Workers[R]) over
//     the same engine for callers who want to drain results/errors as they
//     arrive rather than block until everything finishes.
//
// Errors
//   - A task's failure is an aggregate (github.com/hashicorp/go-multierror)
//     of every error it (and any attached child it owns) produced.
//     TaskMetaError/ExtractTaskID/ExtractTaskIndex recover which task and,
//     for batch helpers, which input index an error came from.
//   - An exception that is never observed (via Result, Wait, or a
//     WhenAll/Unwrap that adopts it) before the task is garbage collected
//     is reported to SetUnobservedExceptionSink's sink, logged via logrus
//     by default.
package tasks
