package tasks

import "context"

// Execution-context flow (spec.md §9) is modeled the idiomatic Go way: the
// ambient "current task" slot is a context.Context value rather than a
// thread-local, since goroutines have no stable thread identity to key a
// thread-local on. Task bodies are always invoked with a context carrying
// themselves, so CurrentID(ctx) inside a running body returns that task's Id,
// and attachment (spec.md §4.7) is resolved by looking up the current task on
// the context passed to the child's constructor.
type currentTaskKey struct{}

func withCurrentTask(ctx context.Context, t *taskBase) context.Context {
	return context.WithValue(ctx, currentTaskKey{}, t)
}

func currentTaskFromContext(ctx context.Context) *taskBase {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(currentTaskKey{}).(*taskBase)
	return t
}

// CurrentID returns the Id of the task currently executing on ctx, if any
// (spec.md §6 static CurrentId).
func CurrentID(ctx context.Context) (uint64, bool) {
	t := currentTaskFromContext(ctx)
	if t == nil {
		return 0, false
	}
	return t.ID(), true
}
