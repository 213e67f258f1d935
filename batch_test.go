package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAll_AggregatesResultsAndErrors(t *testing.T) {
	boom := errors.New("boom")
	fns := []any{
		func(ctx context.Context) (int, error) { return 1, nil },
		func(ctx context.Context) (int, error) { return 0, boom },
		func(ctx context.Context) (int, error) { return 3, nil },
	}

	results, err := RunAll[int](context.Background(), fns)
	require.Error(t, err)
	assert.ElementsMatch(t, []int{1, 3}, results)
}

func TestRunAll_Empty(t *testing.T) {
	results, err := RunAll[int](context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestMap_TransformsEachItem(t *testing.T) {
	items := []int{1, 2, 3, 4}
	results, err := Map(context.Background(), items, func(ctx context.Context, v int) (int, error) {
		return v * 2, nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{2, 4, 6, 8}, results)
}

func TestForEach_AggregatesErrors(t *testing.T) {
	items := []int{1, 2, 3}
	boom := errors.New("boom")
	err := ForEach(context.Background(), items, func(ctx context.Context, v int) error {
		if v == 2 {
			return boom
		}
		return nil
	})
	require.Error(t, err)
}

func TestMapStream_StreamsResults(t *testing.T) {
	in := make(chan int, 3)
	in <- 1
	in <- 2
	in <- 3
	close(in)

	out, errsCh := MapStream(context.Background(), in, func(ctx context.Context, v int) (int, error) {
		return v * 10, nil
	})

	got := make(map[int]bool)
	done := false
	for !done {
		select {
		case v, ok := <-out:
			if !ok {
				done = true
				continue
			}
			got[v] = true
		case e, ok := <-errsCh:
			require.False(t, ok && e != nil)
		}
	}

	assert.True(t, got[10])
	assert.True(t, got[20])
	assert.True(t, got[30])
}

func TestRunStream_ExecutesQueuedFunctions(t *testing.T) {
	in := make(chan any, 2)
	in <- func(ctx context.Context) (int, error) { return 11, nil }
	in <- func(ctx context.Context) (int, error) { return 22, nil }
	close(in)

	out, _ := RunStream[int](context.Background(), in)

	got := make(map[int]bool)
	for v := range out {
		got[v] = true
	}
	assert.True(t, got[11])
	assert.True(t, got[22])
}

func TestForEachStream_ReportsErrors(t *testing.T) {
	in := make(chan int, 2)
	in <- 1
	in <- 2
	close(in)

	boom := errors.New("boom")
	errsCh := ForEachStream(context.Background(), in, func(ctx context.Context, v int) error {
		if v == 1 {
			return boom
		}
		return nil
	})

	var errCount int
	for e := range errsCh {
		if e != nil {
			errCount++
		}
	}
	assert.Equal(t, 1, errCount)
}
