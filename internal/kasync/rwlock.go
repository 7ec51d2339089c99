package kasync

import "context"

// RWMutex is an async reader/writer lock: any number of readers may hold
// it concurrently, but a writer excludes everyone. Built from two
// Semaphores -- a writer gate of capacity one, and a readers' entry gate
// that the first reader acquires and the last reader releases, the
// standard "readers' count gates the writer" construction, adapted to
// park on channels instead of blocking OS threads.
type RWMutex struct {
	writer  *Semaphore
	entry   *Semaphore // held by the writer, or by "at least one reader is active"
	readMu  *Mutex
	readers int
}

// NewRWMutex creates an unlocked RWMutex.
func NewRWMutex() *RWMutex {
	return &RWMutex{
		writer: NewSemaphore(1),
		entry:  NewSemaphore(1),
		readMu: NewMutex(),
	}
}

// RLock acquires a read lock, blocking only while a writer holds the lock.
func (rw *RWMutex) RLock(ctx context.Context) error {
	if err := rw.readMu.Lock(ctx); err != nil {
		return err
	}
	defer rw.readMu.Unlock()

	if rw.readers == 0 {
		if err := rw.entry.Acquire(ctx); err != nil {
			return err
		}
	}
	rw.readers++
	return nil
}

// RUnlock releases a read lock.
func (rw *RWMutex) RUnlock() {
	rw.readMu.Lock(context.Background())
	defer rw.readMu.Unlock()

	rw.readers--
	if rw.readers == 0 {
		rw.entry.Release()
	} else if rw.readers < 0 {
		panic("kasync: RWMutex: RUnlock without matching RLock")
	}
}

// Lock acquires the exclusive write lock, blocking until every reader (and
// any other writer) has released it.
func (rw *RWMutex) Lock(ctx context.Context) error {
	if err := rw.writer.Acquire(ctx); err != nil {
		return err
	}
	if err := rw.entry.Acquire(ctx); err != nil {
		rw.writer.Release()
		return err
	}
	return nil
}

// Unlock releases the write lock.
func (rw *RWMutex) Unlock() {
	rw.entry.Release()
	rw.writer.Release()
}
