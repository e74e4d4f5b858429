// Package queue provides the unbounded FIFO of due task identifiers that
// connects the scheduler to the dispatch loop.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("queue closed")

// Item is one emission: the task id and the instant it was found due.
// A zero At means the consumer evaluates the task at its own clock.
type Item struct {
	ID int64
	At time.Time
}

// Queue is an unbounded multi-producer, multi-consumer FIFO.
// Push never blocks. Pop keeps returning buffered items after Close until the
// buffer is drained.
type Queue struct {
	mu     sync.Mutex
	items  []Item
	head   int
	closed bool
	// ready is signaled (non-blocking) whenever items are added or the queue closes.
	ready chan struct{}
	done  chan struct{}
}

func New() *Queue {
	return &Queue{ready: make(chan struct{}, 1), done: make(chan struct{})}
}

// Push enqueues ids without an emission instant.
func (q *Queue) Push(ids ...int64) error { return q.PushAt(time.Time{}, ids...) }

// PushAt enqueues ids stamped with the instant they were found due.
func (q *Queue) PushAt(at time.Time, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	for _, id := range ids {
		q.items = append(q.items, Item{ID: id, At: at})
	}
	q.mu.Unlock()
	q.signal()
	return nil
}

// Pop blocks until an item is available, the queue is closed and drained
// (ok=false), or ctx is done.
func (q *Queue) Pop(ctx context.Context) (it Item, ok bool, err error) {
	for {
		q.mu.Lock()
		if q.head < len(q.items) {
			it = q.items[q.head]
			q.head++
			q.compactLocked()
			more := q.head < len(q.items)
			q.mu.Unlock()
			if more {
				// Wake another consumer.
				q.signal()
			}
			return it, true, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Item{}, false, nil
		}

		select {
		case <-ctx.Done():
			return Item{}, false, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Close stops intake. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// compactLocked reclaims the consumed prefix once it dominates the buffer.
func (q *Queue) compactLocked() {
	if q.head == len(q.items) {
		clear(q.items)
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head >= 1024 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}
