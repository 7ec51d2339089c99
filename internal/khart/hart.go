// Package khart models the per-hart (hardware-thread) primitives every
// other kernel package builds on: a pinned OS-thread identity, a re-entrant
// critical-section guard standing in for clearing sstatus.SIE, and a
// per-hart wake source used to pull an idle hart out of its poll.
//
// Grounded on eventloop.run's LockOSThread/UnlockOSThread discipline and
// its getGoroutineID stack-parsing trick (eventloop/loop.go), and on
// eventloop's eventfd-based wake pipe (eventloop/wakeup_linux.go).
package khart

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ID identifies a hart. Harts are numbered from 0 by the boot sequence.
type ID uint32

var (
	registryMu sync.RWMutex
	byGoroutine = map[uint64]ID{}
)

// Pin binds the calling goroutine to its OS thread for the lifetime of the
// returned unpin function and registers it under id, exactly mirroring the
// teacher's choice to defer LockOSThread until it's actually needed (here:
// always, at hart-loop start, since every hart uses the trap/paging layers
// which require thread affinity for CSR-equivalent state).
func Pin(id ID) (unpin func()) {
	runtime.LockOSThread()
	gid := goroutineID()

	registryMu.Lock()
	byGoroutine[gid] = id
	registryMu.Unlock()

	return func() {
		registryMu.Lock()
		delete(byGoroutine, gid)
		registryMu.Unlock()
		runtime.UnlockOSThread()
	}
}

// Current returns the ID of the hart running the calling goroutine, and
// false if the calling goroutine was never Pin'd (a programmer error --
// callers in debug builds should treat this as fatal).
func Current() (ID, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	id, ok := byGoroutine[goroutineID()]
	return id, ok
}

// goroutineID extracts the calling goroutine's numeric id by parsing the
// "goroutine N [...]" prefix of a single-frame stack trace -- the same
// trick eventloop.getGoroutineID uses to implement isLoopThread.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// Critical is a re-entrant, refcounted critical-section guard for one hart.
// Entering clears the hart's interrupt-enable flag conceptually (in this
// simulation, it simply prevents re-entrant trap delivery from scheduling
// another goroutine onto the same logical hart slot); every kernel spin-lock
// reachable from a re-entrant trap handler must be acquired only while
// inside a Critical section, per spec.md §5.
type Critical struct {
	depth atomic.Int32
}

// Enter increments the re-entrancy depth. The first Enter on depth 0 is the
// one that would, on real hardware, clear sstatus.SIE.
func (c *Critical) Enter() {
	c.depth.Add(1)
}

// Exit decrements the re-entrancy depth. Interrupts are conceptually
// re-enabled only when the depth returns to zero.
func (c *Critical) Exit() {
	if c.depth.Add(-1) < 0 {
		panic("khart: Critical.Exit without matching Enter")
	}
}

// InCritical reports whether the guard is currently held (depth > 0).
func (c *Critical) InCritical() bool {
	return c.depth.Load() > 0
}

// WakeSource is a per-hart eventfd-backed wake primitive: writing to it
// (Wake) pulls a hart parked in Wait out of its idle poll, exactly as
// eventloop's wake pipe pulls the event loop out of PollIO. Unlike the
// teacher, which falls back to a plain channel when no I/O fd is
// registered, a hart always has real work to be woken for (user traps,
// remote-fence IPIs), so WakeSource always uses the eventfd path. The
// executor's Run loop (internal/exec) is what actually waits on it.
type WakeSource struct {
	fd int
}

// NewWakeSource creates a non-blocking, close-on-exec eventfd wake source.
func NewWakeSource() (*WakeSource, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &WakeSource{fd: fd}, nil
}

// FD returns the underlying eventfd, for registration with a poller.
func (w *WakeSource) FD() int { return w.fd }

// Wake signals the hart, coalescing with any pending un-drained signal
// (eventfd semantics already do this: writes accumulate into one counter).
func (w *WakeSource) Wake() error {
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	_, err := unix.Write(w.fd, buf)
	return err
}

// Drain resets the eventfd counter after a wake, mirroring
// eventloop.drainWakeUpPipe.
func (w *WakeSource) Drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.fd, buf[:])
		if err != nil {
			return
		}
	}
}

// pollIntervalMillis bounds how long Wait blocks between checks of ctx,
// mirroring the bounded-wait shape eventloop's own poller uses instead of
// an indefinite blocking poll that could outlive a cancelled caller.
const pollIntervalMillis = 20

// Wait parks the calling goroutine until Wake is called or ctx ends,
// pulling an idle hart out of its scheduling loop exactly the way
// eventloop's poller pulls the event loop out of PollIO on a wake-pipe
// write, instead of the caller busy-spinning. Returns ctx.Err() if ctx
// ended the wait; a real wake (or a benign poll timeout, retried
// internally) returns nil.
func (w *WakeSource) Wait(ctx context.Context) error {
	fds := []unix.PollFd{{Fd: int32(w.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := unix.Poll(fds, pollIntervalMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n > 0 {
			w.Drain()
			return nil
		}
	}
}

// Close releases the eventfd.
func (w *WakeSource) Close() error {
	return unix.Close(w.fd)
}
