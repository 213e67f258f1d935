package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkers_DeliversResults(t *testing.T) {
	w := NewWorkers[int](context.Background(), WithStartImmediately())

	for i := 1; i <= 3; i++ {
		v := i
		require.NoError(t, w.AddTask(func(ctx context.Context) (int, error) { return v * v, nil }))
	}

	got := make(map[int]bool)
	for i := 0; i < 3; i++ {
		got[<-w.GetResults()] = true
	}
	w.Close()

	assert.True(t, got[1])
	assert.True(t, got[4])
	assert.True(t, got[9])
}

func TestWorkers_PreserveOrder(t *testing.T) {
	w := NewWorkers[int](context.Background(), WithStartImmediately(), WithPreserveOrder())

	for i := 0; i < 5; i++ {
		v := i
		require.NoError(t, w.AddTask(func(ctx context.Context) (int, error) { return v, nil }))
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, i, <-w.GetResults())
	}
	w.Close()
}

func TestWorkers_StopOnErrorForwardsError(t *testing.T) {
	w := NewWorkers[NoResult](context.Background(), WithStartImmediately(), WithStopOnError())

	boom := errors.New("boom")
	require.NoError(t, w.AddTask(func(ctx context.Context) error { return boom }))

	err := <-w.GetErrors()
	require.Error(t, err)
	w.Close()
}

func TestWorkers_ErrorTaggingCarriesTaskID(t *testing.T) {
	w := NewWorkers[NoResult](context.Background(), WithStartImmediately(), WithErrorTagging())

	boom := errors.New("boom")
	require.NoError(t, w.AddTask(func(ctx context.Context) error { return boom }))

	err := <-w.GetErrors()
	_, ok := ExtractTaskID(err)
	assert.True(t, ok)
	w.Close()
}

func TestWorkers_AddTaskBeforeStartFails(t *testing.T) {
	w := NewWorkers[int](context.Background())
	err := w.AddTask(func(ctx context.Context) (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrInvalidState)
	w.Close()
}
