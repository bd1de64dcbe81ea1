package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/gammazero/deque"
)

var ErrQueueAborted = errors.New("tasks: queue aborted")

// Queue is an unbounded multi-producer multi-consumer FIFO with a blocking pop
// that can be woken by Abort or a context.
type Queue[T any] struct {
	mu      sync.Mutex
	items   deque.Deque[T]
	notify  chan struct{}
	done    chan struct{}
	aborted bool
	once    sync.Once
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items.PushBack(v)
	q.mu.Unlock()
	q.signal()
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (q *Queue[T]) Empty() bool { return q.Len() == 0 }

// TryPop returns the front item without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		var zero T
		return zero, false
	}
	return q.items.PopFront(), true
}

// WaitAndPop blocks until an item is available. Items queued before Abort are
// still delivered; once the queue is empty and aborted it returns ErrQueueAborted.
func (q *Queue[T]) WaitAndPop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			v := q.items.PopFront()
			more := q.items.Len() > 0
			q.mu.Unlock()
			if more {
				// Pass the wake-up on to another waiting consumer.
				q.signal()
			}
			return v, nil
		}
		aborted := q.aborted
		q.mu.Unlock()
		if aborted {
			return zero, ErrQueueAborted
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Abort wakes every blocked consumer.
func (q *Queue[T]) Abort() {
	q.once.Do(func() {
		q.mu.Lock()
		q.aborted = true
		q.mu.Unlock()
		close(q.done)
	})
}
