// Package kasync provides the kernel's async synchronization primitives:
// mutex, rwlock, semaphore, broadcast, a multi-producer single-consumer
// channel, and event subscriptions -- all built as plain Go channels
// instead of a blocking OS mutex, so a suspended waiter parks a goroutine
// (cheap) rather than ever touching a spin-lock.
//
// The semaphore and mutex are grounded on microbatch.Batcher's
// jobCh/batchCh ping-pong handshake: Submit there blocks until the batch
// goroutine hands back a result, which is exactly a capacity-N admission
// gate when generalised from capacity 1 to N.
package kasync

import "context"

// Semaphore is an async counting semaphore: Acquire blocks (respecting
// ctx) until a permit is available, Release returns one.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore creates a Semaphore with capacity permits immediately
// available, the same "pre-filled buffered channel" idiom microbatch's
// ping side relies on implicitly via its unbuffered jobCh rendezvous.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		panic("kasync: semaphore capacity must be positive")
	}
	s := &Semaphore{tokens: make(chan struct{}, capacity)}
	for i := 0; i < capacity; i++ {
		s.tokens <- struct{}{}
	}
	return s
}

// Acquire blocks until a permit is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case <-s.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire attempts to acquire a permit without blocking.
func (s *Semaphore) TryAcquire() bool {
	select {
	case <-s.tokens:
		return true
	default:
		return false
	}
}

// Release returns a permit. Releasing more permits than the configured
// capacity panics, the same "don't silently corrupt state" posture
// microbatch.Batcher.Shutdown takes on a double-close.
func (s *Semaphore) Release() {
	select {
	case s.tokens <- struct{}{}:
	default:
		panic("kasync: semaphore released more permits than its capacity")
	}
}

// Mutex is a Semaphore of capacity one, the degenerate case of the same
// admission-gate pattern.
type Mutex struct {
	sem *Semaphore
}

// NewMutex creates an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: NewSemaphore(1)}
}

// Lock blocks until the mutex is acquired or ctx is done.
func (m *Mutex) Lock(ctx context.Context) error { return m.sem.Acquire(ctx) }

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() bool { return m.sem.TryAcquire() }

// Unlock releases the mutex. Unlocking an already-unlocked Mutex panics.
func (m *Mutex) Unlock() { m.sem.Release() }
