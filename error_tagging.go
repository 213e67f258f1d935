package tasks

import (
	"errors"
	"fmt"
)

// TaskMetaError exposes correlation metadata for a captured task failure:
// the owning task's Id and its AddTask input index. Generalized from the
// teacher's batch-only error_tagging.go to carry a task Id. Tagging is
// applied by the Workers facade under WithErrorTagging (so also by the batch
// helpers when that option is passed); exception holders store errors
// untagged.
type TaskMetaError interface {
	error
	Unwrap() error
	TaskID() (uint64, bool)
	TaskIndex() (int, bool)
}

type taskTaggedError struct {
	err   error
	id    uint64
	index int
	hasID bool
	hasIx bool
}

// newTaskTaggedError wraps err with the owning task's Id. index < 0 means
// "no batch index" (set hasIx accordingly).
func newTaskTaggedError(err error, id uint64, index int) error {
	if err == nil {
		return nil
	}
	return &taskTaggedError{err: err, id: id, index: index, hasID: true, hasIx: index >= 0}
}

func (e *taskTaggedError) Error() string { return e.err.Error() }
func (e *taskTaggedError) Unwrap() error { return e.err }

func (e *taskTaggedError) TaskID() (uint64, bool) {
	return e.id, e.hasID
}

func (e *taskTaggedError) TaskIndex() (int, bool) {
	if !e.hasIx {
		return 0, false
	}
	return e.index, true
}

func (e *taskTaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "task(id=%d,index=%d): %+v", e.id, e.index, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractTaskID returns the owning task's Id from err if present.
func ExtractTaskID(err error) (uint64, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.TaskID()
	}
	return 0, false
}

// ExtractTaskIndex returns the batch input index from err if present.
func ExtractTaskIndex(err error) (int, bool) {
	var tme TaskMetaError
	if errors.As(err, &tme) {
		return tme.TaskIndex()
	}
	return 0, false
}
