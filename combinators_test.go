package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContinueWith_ChainsResult(t *testing.T) {
	sched := NewPoolScheduler(8)
	defer sched.Close()

	ant := New[int](context.Background(), func(ctx context.Context) (int, error) { return 2, nil })
	cont := ContinueWith[int, int](ant, func(ctx context.Context, t *Task[int]) (int, error) {
		v, err := t.Result()
		return v * 10, err
	}, WithContinuationScheduler(sched))

	require.NoError(t, ant.Start(sched))
	require.NoError(t, cont.Wait(-1, nil))

	res, err := cont.Result()
	require.NoError(t, err)
	assert.Equal(t, 20, res)
}

func TestContinueWith_OnlyOnFaultedSkipsSuccess(t *testing.T) {
	sched := NewPoolScheduler(8)
	defer sched.Close()

	ant := New[int](context.Background(), func(ctx context.Context) (int, error) { return 1, nil })
	cont := ContinueWith[int, NoResult](ant, func(ctx context.Context, t *Task[int]) error {
		return nil
	}, OnlyOnFaulted(), WithContinuationScheduler(sched))

	require.NoError(t, ant.Start(sched))
	require.Error(t, cont.Wait(-1, nil))

	assert.True(t, cont.IsCanceled())
}

func TestWhenAll_AggregatesResults(t *testing.T) {
	sched := NewPoolScheduler(8)
	defer sched.Close()

	a := New[int](context.Background(), func(ctx context.Context) (int, error) { return 1, nil })
	b := New[int](context.Background(), func(ctx context.Context) (int, error) { return 2, nil })
	require.NoError(t, a.Start(sched))
	require.NoError(t, b.Start(sched))

	all := WhenAll(a, b)
	require.NoError(t, all.Wait(-1, nil))

	res, err := all.Result()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res)
}

func TestWhenAll_FaultedWinsOverCanceled(t *testing.T) {
	sched := NewPoolScheduler(8)
	defer sched.Close()

	boom := errors.New("boom")
	faulted := New[int](context.Background(), func(ctx context.Context) (int, error) { return 0, boom })

	src := NewCancelSource()
	src.Cancel()
	canceled := New[int](context.Background(), func(ctx context.Context) (int, error) { return 0, nil }, WithCancelToken(src.Token()))

	require.NoError(t, faulted.Start(sched))
	require.ErrorIs(t, canceled.Start(sched), ErrInvalidState)

	all := WhenAll(faulted, canceled)
	err := all.Wait(-1, nil)
	require.Error(t, err)
	assert.True(t, all.IsFaulted())

	// spec.md §8 scenario 5: a Faulted WhenAll's aggregate carries only the
	// genuinely faulted constituent's error, not the canceled sibling's too.
	assert.ErrorIs(t, err, boom)
	var oce *OperationCanceledError
	assert.NotErrorIs(t, err, oce)
}

func TestWhenAll_Empty(t *testing.T) {
	all := WhenAll[int]()
	require.NoError(t, all.Wait(-1, nil))
	res, err := all.Result()
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestWhenAny_ReturnsFirstTask(t *testing.T) {
	sched := NewPoolScheduler(8)
	defer sched.Close()

	slow := New[int](context.Background(), func(ctx context.Context) (int, error) {
		time.Sleep(40 * time.Millisecond)
		return 1, nil
	})
	fast := New[int](context.Background(), func(ctx context.Context) (int, error) { return 2, nil })

	require.NoError(t, slow.Start(sched))
	require.NoError(t, fast.Start(sched))

	any, err := WhenAny(slow, fast)
	require.NoError(t, err)
	require.NoError(t, any.Wait(-1, nil))

	winner, err := any.Result()
	require.NoError(t, err)
	assert.Same(t, fast, winner)
}

func TestWhenAny_NoInputs(t *testing.T) {
	_, err := WhenAny[int]()
	assert.ErrorIs(t, err, ErrNoInputs)
}

func TestUnwrap_FlattensInnerTask(t *testing.T) {
	sched := NewPoolScheduler(8)
	defer sched.Close()

	inner := New[int](context.Background(), func(ctx context.Context) (int, error) { return 7, nil })
	outer := New[*Task[int]](context.Background(), func(ctx context.Context) (*Task[int], error) {
		require.NoError(t, inner.Start(sched))
		return inner, nil
	})
	require.NoError(t, outer.Start(sched))

	flat := Unwrap(outer)
	require.NoError(t, flat.Wait(-1, nil))

	res, err := flat.Result()
	require.NoError(t, err)
	assert.Equal(t, 7, res)
}

func TestDelay_CompletesAfterDuration(t *testing.T) {
	start := time.Now()
	d := Delay(context.Background(), 20*time.Millisecond)
	require.NoError(t, d.Wait(-1, nil))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestDelay_CanceledByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := Delay(ctx, time.Second)
	cancel()
	err := d.Wait(-1, nil)
	require.Error(t, err)
}

// Delay(100ms, token); signal token at 50ms -> resulting task is Canceled
// (spec.md §8 scenario 6): the token must race the timer directly rather
// than being routed through the generic scheduler-cancellation path, which
// never applies to a promise with no scheduled body.
func TestDelay_CanceledByToken(t *testing.T) {
	src := NewCancelSource()
	start := time.Now()
	d := Delay(context.Background(), 100*time.Millisecond, WithCancelToken(src.Token()))

	time.AfterFunc(50*time.Millisecond, src.Cancel)

	err := d.Wait(-1, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	var oce *OperationCanceledError
	assert.ErrorAs(t, err, &oce)
	assert.True(t, d.IsCanceled())
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestRun_StartsImmediately(t *testing.T) {
	r := Run[int](context.Background(), func(ctx context.Context) (int, error) { return 5, nil })
	res, err := r.Result()
	require.NoError(t, err)
	assert.Equal(t, 5, res)
}
