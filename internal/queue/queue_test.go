package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_SendReceive_FIFO(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, q.Send(ctx, i))
	}
	assert.Equal(t, 4, q.Len())

	for i := 1; i <= 4; i++ {
		got, err := q.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_TrySend_Full(t *testing.T) {
	q := New[string](1)

	require.NoError(t, q.TrySend("a"))
	err := q.TrySend("b")
	require.ErrorIs(t, err, ErrFull)

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.Enqueued)
	assert.Equal(t, int64(1), stats.Rejected)
}

func TestQueue_Send_ContextCancelled(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Send(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Send(ctx, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_Close_RejectsSendsDrainsReceives(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, 1))
	require.NoError(t, q.Send(ctx, 2))

	q.Close()
	assert.True(t, q.Closed())

	err := q.Send(ctx, 3)
	require.ErrorIs(t, err, ErrClosed)

	got, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	got, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	_, err = q.Receive(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueue_Close_Idempotent(t *testing.T) {
	q := New[int](1)
	q.Close()
	assert.NotPanics(t, func() { q.Close() })
}

func TestQueue_TryReceive(t *testing.T) {
	q := New[int](2)

	_, ok := q.TryReceive()
	assert.False(t, ok)

	require.NoError(t, q.TrySend(7))
	got, ok := q.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, 7, got)
}

func TestQueue_MinimumCapacity(t *testing.T) {
	q := New[int](0)
	assert.Equal(t, 1, q.Cap())
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	q := New[int](8)
	ctx := context.Background()

	const producers = 4
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = q.Send(ctx, i)
			}
		}()
	}

	received := make(chan int, producers*perProducer)
	var cg sync.WaitGroup
	for c := 0; c < 2; c++ {
		cg.Add(1)
		go func() {
			defer cg.Done()
			for {
				item, err := q.Receive(ctx)
				if err != nil {
					return
				}
				received <- item
			}
		}()
	}

	wg.Wait()
	q.Close()
	cg.Wait()
	close(received)

	count := 0
	for range received {
		count++
	}
	assert.Equal(t, producers*perProducer, count)

	stats := q.Stats()
	assert.Equal(t, int64(producers*perProducer), stats.Enqueued)
	assert.Equal(t, int64(producers*perProducer), stats.Dequeued)
}
