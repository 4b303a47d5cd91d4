package taskqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadArgs(t *testing.T) {
	_, err := New[int](0, func(int) {})
	assert.Error(t, err)

	_, err = New[int](4, nil)
	assert.Error(t, err)
}

func TestPushRejectsWhenFull(t *testing.T) {
	q, err := New[int](2, func(int) {})
	require.NoError(t, err)

	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	assert.ErrorIs(t, q.Push(3), ErrQueueFull)
}

func TestPushRejectsAfterTerminate(t *testing.T) {
	q, err := New[int](2, func(int) {})
	require.NoError(t, err)

	q.Terminate()
	assert.ErrorIs(t, q.Push(1), ErrClosed)
}

func TestRunDrainsAllPushedItemsBeforeExit(t *testing.T) {
	const items = 2000
	var processed atomic.Int64

	q, err := New[int](16, func(int) {
		processed.Add(1)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.Run(ctx, 4)
	}()

	go func() {
		for i := 0; i < items; i++ {
			for q.Push(i) == ErrQueueFull {
				time.Sleep(time.Microsecond)
			}
		}
		q.Terminate()
	}()

	wg.Wait()
	cancel()

	assert.Equal(t, int64(items), processed.Load())
	assert.Equal(t, 0, q.Len())
}

func TestRunHonorsContextCancellation(t *testing.T) {
	q, err := New[int](16, func(int) { time.Sleep(time.Millisecond) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Run(ctx, 2)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
