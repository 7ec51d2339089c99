// Package ktime provides the kernel's monotonic clock and timer queue,
// directly grounded on eventloop/loop.go's timerHeap and tick-anchor
// machinery: a single anchor Instant established once at boot, every later
// reading an offset from it (so it survives wall-clock adjustment), and a
// container/heap-ordered queue of deadlines.
package ktime

import (
	"container/heap"
	"sync"
	"time"
)

// Instant is a monotonic point in time, anchored at boot.
type Instant struct {
	nanos int64
}

// Sub returns the duration elapsed from other to i.
func (i Instant) Sub(other Instant) time.Duration {
	return time.Duration(i.nanos - other.nanos)
}

// Add returns the Instant offset by d.
func (i Instant) Add(d time.Duration) Instant {
	return Instant{nanos: i.nanos + int64(d)}
}

// Before reports whether i occurs before other.
func (i Instant) Before(other Instant) bool { return i.nanos < other.nanos }

// Clock anchors monotonic time at construction, the same role
// eventloop.Loop.tickAnchor plays for its owning Loop.
type Clock struct {
	anchor time.Time
}

// NewClock anchors a new Clock at the current monotonic time.
func NewClock() *Clock {
	return &Clock{anchor: time.Now()}
}

// Now returns the current Instant relative to the clock's anchor.
func (c *Clock) Now() Instant {
	return Instant{nanos: int64(time.Since(c.anchor))}
}

// deadline is one entry in the timer heap.
type deadline struct {
	when Instant
	fn   func()
	seq  uint64 // tie-breaker, preserves FIFO order for equal deadlines
}

type deadlineHeap []*deadline

func (h deadlineHeap) Len() int { return len(h) }
func (h deadlineHeap) Less(i, j int) bool {
	if h[i].when == h[j].when {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h deadlineHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)   { *h = append(*h, x.(*deadline)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Wheel is the kernel's timer queue: a min-heap keyed by deadline, serviced
// by whichever hart calls Advance (on real hardware, the hart handling the
// timer interrupt; see spec.md §4.5's "timer interrupts -> time update").
// Wheel is not safe for concurrent Advance calls from multiple harts, by
// design -- exactly one hart owns timer servicing at a time, matching
// eventloop's single-loop-goroutine ownership of its timerHeap.
type Wheel struct {
	mu   sync.Mutex
	h    deadlineHeap
	seq  uint64
}

// NewWheel creates an empty timer wheel.
func NewWheel() *Wheel {
	return &Wheel{}
}

// Schedule arranges for fn to run (synchronously, from inside Advance) no
// earlier than `at`. It returns a Cancel func; calling it after fn has
// already fired is a harmless no-op.
func (w *Wheel) Schedule(at Instant, fn func()) (cancel func()) {
	w.mu.Lock()
	w.seq++
	d := &deadline{when: at, fn: fn, seq: w.seq}
	heap.Push(&w.h, d)
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, e := range w.h {
			if e == d {
				heap.Remove(&w.h, i)
				return
			}
		}
	}
}

// After is a convenience wrapper returning a channel that closes when d has
// elapsed, per SPEC_FULL.md's "deadline futures" requirement. now is the
// clock reading at the time of the call.
func (w *Wheel) After(now Instant, d time.Duration) <-chan struct{} {
	ch := make(chan struct{})
	w.Schedule(now.Add(d), func() { close(ch) })
	return ch
}

// NextDeadline returns the earliest pending deadline and true, or the zero
// Instant and false if the wheel is empty. No other package in this
// module calls it; the executor's idle wait does not consult a Wheel.
func (w *Wheel) NextDeadline() (Instant, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.h) == 0 {
		return Instant{}, false
	}
	return w.h[0].when, true
}

// Advance runs every deadline at or before now, in deadline order.
func (w *Wheel) Advance(now Instant) {
	for {
		w.mu.Lock()
		if len(w.h) == 0 || now.Before(w.h[0].when) {
			w.mu.Unlock()
			return
		}
		d := heap.Pop(&w.h).(*deadline)
		w.mu.Unlock()
		d.fn()
	}
}

// Len reports the number of pending deadlines.
func (w *Wheel) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.h)
}
