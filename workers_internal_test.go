package tasks

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func recvErr(t *testing.T, ch <-chan error, d time.Duration) (error, bool) {
	t.Helper()
	select {
	case v := <-ch:
		return v, true
	case <-time.After(d):
		return nil, false
	}
}

func noRecvErr(t *testing.T, ch <-chan error) bool {
	t.Helper()
	select {
	case <-ch:
		return false
	default:
		return true
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func newTestForwarder(bufCap, outCap int) (*workersFacade[NoResult], <-chan struct{}) {
	canceled := make(chan struct{})
	w := &workersFacade[NoResult]{
		errorsBuf: make(chan error, bufCap),
		errors:    make(chan error, outCap),
		closeCh:   make(chan struct{}),
		cancel: func() {
			select {
			case <-canceled:
			default:
				close(canceled)
			}
		},
	}
	return w, canceled
}

func TestForwarder_BufferedOut_ForwardsFirstAndCancelsFirst(t *testing.T) {
	w, canceled := newTestForwarder(1, 1)
	done := make(chan struct{})
	go func() { w.runForwarder(); close(done) }()

	w.errorsBuf <- errors.New("boom")

	v, ok := recvErr(t, w.errors, 100*time.Millisecond)
	if !ok {
		t.Fatalf("expected forwarded error, got timeout")
	}
	if v == nil || v.Error() != "boom" {
		t.Fatalf("unexpected forwarded error: %v", v)
	}
	if !isClosed(canceled) {
		t.Fatalf("expected cancel to be called before/at forwarding")
	}
	close(w.closeCh)
	<-done
	w.sendWG.Wait()
}

func TestForwarder_UnbufferedOut_UsesDetachedSenderAndDropsOnClose(t *testing.T) {
	w, canceled := newTestForwarder(1, 0)
	done := make(chan struct{})
	go func() { w.runForwarder(); close(done) }()

	w.errorsBuf <- errors.New("boom")

	time.Sleep(30 * time.Millisecond)
	close(w.closeCh)
	<-done
	w.sendWG.Wait()
	if !noRecvErr(t, w.errors) {
		t.Fatalf("unexpected error delivered after close")
	}
	if !isClosed(canceled) {
		t.Fatalf("expected cancel to be called")
	}
}

func TestForwarder_OnlyFirstForwarded_SubsequentDropped(t *testing.T) {
	w, _ := newTestForwarder(4, 4)
	done := make(chan struct{})
	go func() { w.runForwarder(); close(done) }()

	w.errorsBuf <- errors.New("first")
	w.errorsBuf <- errors.New("second")
	w.errorsBuf <- errors.New("third")

	v, ok := recvErr(t, w.errors, 100*time.Millisecond)
	if !ok {
		t.Fatalf("expected first error to be forwarded")
	}
	if v == nil || v.Error() != "first" {
		t.Fatalf("unexpected first error: %v", v)
	}
	close(w.closeCh)
	<-done
	w.sendWG.Wait()
	if !noRecvErr(t, w.errors) {
		t.Fatalf("expected only first error to be forwarded")
	}
}

func ev[R any](idx int, val R, present bool) completionEvent[R] {
	return completionEvent[R]{idx: idx, val: val, present: present}
}

func runTestReorderer(t *testing.T, events []completionEvent[int], resultsCap int) []int {
	t.Helper()
	w := &workersFacade[int]{
		events:  make(chan completionEvent[int], len(events)),
		results: make(chan int, resultsCap),
	}

	done := make(chan struct{})
	go func() { w.runReorderer(); close(done) }()

	for _, e := range events {
		w.events <- e
	}
	close(w.events)

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("reorderer did not finish in time")
	}

	out := make([]int, 0, resultsCap)
	for i := 0; i < resultsCap; i++ {
		select {
		case v := <-w.results:
			out = append(out, v)
		default:
			return out
		}
	}
	return out
}

func assertEqualInts(t *testing.T, got, want []int) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected results: got=%v want=%v", got, want)
	}
}

func TestReorderer_InOrder(t *testing.T) {
	res := runTestReorderer(t, []completionEvent[int]{
		ev(0, 1, true),
		ev(1, 2, true),
	}, 4)
	assertEqualInts(t, res, []int{1, 2})
}

func TestReorderer_OutOfOrder_BufferThenFlush(t *testing.T) {
	res := runTestReorderer(t, []completionEvent[int]{
		ev(1, 2, true), // buffered first
		ev(0, 1, true), // unlocks 0 then 1
	}, 4)
	assertEqualInts(t, res, []int{1, 2})
}

func TestReorderer_NoResultAdvances(t *testing.T) {
	res := runTestReorderer(t, []completionEvent[int]{
		ev(0, 10, true), // emits 10
		ev(2, 20, true), // buffered (waiting for idx1)
		ev(1, 0, false), // advances cursor, unlocks 20
	}, 4)
	assertEqualInts(t, res, []int{10, 20})
}

func TestReorderer_ShutdownFlushContiguousOnly(t *testing.T) {
	res := runTestReorderer(t, []completionEvent[int]{
		// only idx1 arrives; idx0 missing, so nothing should be emitted
		ev(1, 2, true),
	}, 4)
	if len(res) != 0 {
		t.Fatalf("expected empty results, got=%v", res)
	}
}

func TestReorderer_MultipleNoResultInARow(t *testing.T) {
	res := runTestReorderer(t, []completionEvent[int]{
		ev(0, 0, false), // advance 0
		ev(1, 0, false), // advance 1
		ev(2, 3, true),  // should emit now
	}, 4)
	assertEqualInts(t, res, []int{3})
}

// TestWorkers_CloseOrdersShutdownSteps exercises Close's own sequencing:
// in-flight work must drain before closeCh closes, and closeCh must close
// before results/errors do, or a still-running deliver could send on a
// closed channel.
func TestWorkers_CloseOrdersShutdownSteps(t *testing.T) {
	w := NewWorkers[int](context.Background(), WithStartImmediately(), WithPreserveOrder()).(*workersFacade[int])

	release := make(chan struct{})
	require := func(cond bool, msg string) {
		if !cond {
			t.Fatal(msg)
		}
	}
	require(w.AddTask(func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	}) == nil, "AddTask failed")

	closeDone := make(chan struct{})
	go func() { w.Close(); close(closeDone) }()

	// Close must block on the in-flight task.
	select {
	case <-closeDone:
		t.Fatalf("Close returned before in-flight task completed")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)

	select {
	case <-closeDone:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("Close did not return after in-flight task completed")
	}

	if !isClosed(w.closeCh) {
		t.Fatalf("expected closeCh to be closed")
	}
	if v, ok := <-w.results; !ok || v != 1 {
		t.Fatalf("expected buffered result 1, got v=%v ok=%v", v, ok)
	}
	if _, ok := <-w.results; ok {
		t.Fatalf("expected results channel to be closed after draining")
	}
}
