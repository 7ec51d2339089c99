package kasync

import (
	"context"
	"sync"

	"github.com/joeycumines/go-rvkernel/internal/ring"
)

// MPSC is a multi-producer, single-consumer queue backed by
// internal/ring's growable ring buffer, with a mutex for safe concurrent
// Send and a single wake channel the one consumer parks on -- the pipe
// primitive spec.md §8 scenario 1 (syscall write/read on a shared Phys)
// ultimately composes on top of.
type MPSC[T any] struct {
	mu     sync.Mutex
	buf    *ring.Buffer[uint64]
	values map[uint64]T
	nextID uint64
	wake   chan struct{}
	closed bool
}

// NewMPSC creates an empty MPSC with the given initial ring capacity
// (must be a power of two).
func NewMPSC[T any](capacity int) *MPSC[T] {
	return &MPSC[T]{
		buf:    ring.New[uint64](capacity),
		values: map[uint64]T{},
		wake:   make(chan struct{}, 1),
	}
}

// Send enqueues v. Safe for concurrent use by any number of producers.
// Sending on a closed MPSC is a no-op.
func (q *MPSC[T]) Send(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	id := q.nextID
	q.nextID++
	q.values[id] = v
	q.buf.PushBack(id)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Recv blocks until a value is available, the queue is closed, or ctx is
// done. ok is false only once every buffered value has been drained after
// Close.
func (q *MPSC[T]) Recv(ctx context.Context) (v T, ok bool, err error) {
	for {
		q.mu.Lock()
		id, has := q.buf.PopFront()
		if has {
			val := q.values[id]
			delete(q.values, id)
			q.mu.Unlock()
			return val, true, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			var zero T
			return zero, false, nil
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		}
	}
}

// Close marks the queue closed; buffered values remain drainable, but
// after they're gone Recv reports ok=false.
func (q *MPSC[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
