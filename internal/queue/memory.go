package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is a bounded in-process queue.
type MemoryQueue[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue creates a queue holding at most capacity items.
func NewMemoryQueue[T any](capacity int) *MemoryQueue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryQueue[T]{
		items: make(chan T, capacity),
		done:  make(chan struct{}),
	}
}

func (q *MemoryQueue[T]) Push(ctx context.Context, item T) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- item:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PopBatch keeps returning buffered items after Close until the queue is
// empty, then reports ErrQueueClosed.
func (q *MemoryQueue[T]) PopBatch(ctx context.Context, max int, wait time.Duration) ([]T, error) {
	if max <= 0 {
		return nil, nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var first T
	select {
	case first = <-q.items:
	case <-q.done:
		select {
		case first = <-q.items:
		default:
			return nil, ErrQueueClosed
		}
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	batch := []T{first}
	for len(batch) < max {
		select {
		case item := <-q.items:
			batch = append(batch, item)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (q *MemoryQueue[T]) Len(ctx context.Context) (int, error) {
	return len(q.items), nil
}

// Close rejects further pushes. Buffered items can still be popped.
func (q *MemoryQueue[T]) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// MemoryDeadLetterQueue keeps dead letters in process memory.
type MemoryDeadLetterQueue[T any] struct {
	mu      sync.Mutex
	letters []DeadLetter[T]
	closed  bool
}

func NewMemoryDeadLetterQueue[T any]() *MemoryDeadLetterQueue[T] {
	return &MemoryDeadLetterQueue[T]{}
}

func (q *MemoryDeadLetterQueue[T]) Add(ctx context.Context, item T, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.letters = append(q.letters, newDeadLetter(item, cause))
	return nil
}

func (q *MemoryDeadLetterQueue[T]) List(ctx context.Context, max int) ([]DeadLetter[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	n := len(q.letters)
	if max > 0 && max < n {
		n = max
	}
	return append([]DeadLetter[T](nil), q.letters[:n]...), nil
}

func (q *MemoryDeadLetterQueue[T]) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	for i, l := range q.letters {
		if l.ID == id {
			q.letters = append(q.letters[:i], q.letters[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

func (q *MemoryDeadLetterQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.letters = nil
	return nil
}
