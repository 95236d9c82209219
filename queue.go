package wsflow

import (
	"sync"

	"github.com/gammazero/deque"
)

// queue is an unbounded FIFO shared by one or more producers and a single consumer.
// Push never blocks, which lets transport goroutines hand items over and return
// immediately. The consumer waits on Ready and then drains with Pop until it reports false.
type queue[T any] struct {
	mu     sync.Mutex
	items  deque.Deque[T]
	ready  chan struct{}
	closed bool
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{ready: make(chan struct{}, 1)}
}

// Push appends v. It returns false when the queue has been closed, in which case v is dropped.
func (q *queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items.PushBack(v)
	q.mu.Unlock()

	q.signal()
	return true
}

// Pop removes the oldest item.
func (q *queue[T]) Pop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return v, false
	}
	return q.items.PopFront(), true
}

// Ready is signalled at least once after every Push.
func (q *queue[T]) Ready() <-chan struct{} {
	return q.ready
}

func (q *queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.items.Len()
}

// Close rejects further pushes. Items already queued can still be popped.
func (q *queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
