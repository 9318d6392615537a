// Package queue provides the bounded dispatch queue used by the runtime.
// This package is internal and should not be imported by external projects.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned when operating on a closed queue.
	ErrClosed = errors.New("queue is closed")
	// ErrFull is returned by TrySend when the queue is at capacity.
	ErrFull = errors.New("queue is full")
)

// Queue is a fixed-capacity FIFO queue safe for concurrent use.
// Close never closes the underlying channel, so a Send racing a
// Close can not panic; it is rejected through the done channel.
type Queue[T any] struct {
	ch   chan T
	done chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool

	enqueued atomic.Int64
	dequeued atomic.Int64
	rejected atomic.Int64
}

// Stats is a point-in-time snapshot of queue activity.
type Stats struct {
	Depth    int   `json:"depth"`
	Capacity int   `json:"capacity"`
	Enqueued int64 `json:"enqueued"`
	Dequeued int64 `json:"dequeued"`
	Rejected int64 `json:"rejected"`
}

// New creates a queue with the given capacity. Capacity values
// below 1 are raised to 1.
func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Send enqueues an item, blocking until there is room, the context
// is cancelled, or the queue is closed.
func (q *Queue[T]) Send(ctx context.Context, item T) error {
	select {
	case <-q.done:
		q.rejected.Add(1)
		return ErrClosed
	default:
	}

	select {
	case q.ch <- item:
		q.enqueued.Add(1)
		return nil
	case <-q.done:
		q.rejected.Add(1)
		return ErrClosed
	case <-ctx.Done():
		q.rejected.Add(1)
		return ctx.Err()
	}
}

// TrySend enqueues an item without blocking. It returns ErrFull when
// the queue is at capacity and ErrClosed after Close.
func (q *Queue[T]) TrySend(item T) error {
	select {
	case <-q.done:
		q.rejected.Add(1)
		return ErrClosed
	default:
	}

	select {
	case q.ch <- item:
		q.enqueued.Add(1)
		return nil
	default:
		q.rejected.Add(1)
		return ErrFull
	}
}

// Receive dequeues an item, blocking until one is available or the
// context is cancelled. After Close it keeps draining buffered items
// and returns ErrClosed once the queue is empty.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	select {
	case item := <-q.ch:
		q.dequeued.Add(1)
		return item, nil
	case <-q.done:
		// Drain whatever was buffered before the close.
		select {
		case item := <-q.ch:
			q.dequeued.Add(1)
			return item, nil
		default:
			var zero T
			return zero, ErrClosed
		}
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// TryReceive dequeues an item without blocking. The second return
// value reports whether an item was available.
func (q *Queue[T]) TryReceive() (T, bool) {
	select {
	case item := <-q.ch:
		q.dequeued.Add(1)
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.ch)
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	return q.closed.Load()
}

// Close rejects further sends. Buffered items stay receivable until
// drained. Close is idempotent.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.done)
	})
}

// Stats returns a snapshot of queue activity.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Depth:    len(q.ch),
		Capacity: cap(q.ch),
		Enqueued: q.enqueued.Load(),
		Dequeued: q.dequeued.Load(),
		Rejected: q.rejected.Load(),
	}
}
