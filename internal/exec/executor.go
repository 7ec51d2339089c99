package exec

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/joeycumines/go-rvkernel/internal/khart"
	"github.com/joeycumines/go-rvkernel/internal/klog"
)

// Hart is one logical hart's half of the executor: its own local
// work-stealing deque, its one-deep preempt slot, a wake source that
// pulls it out of an empty-queue idle wait, and a reference to the
// Executor it belongs to (for stealing from peers and the global queue).
type Hart struct {
	ID      khart.ID
	local   *deque
	preempt *preemptSlot
	wake    *khart.WakeSource // nil if eventfd creation failed; Run then busy-spins
	ex      *Executor
}

// Executor runs the scheduling policy spec.md §4.1 describes across a
// fixed set of harts: each hart, in order, tries its preempt slot, its
// local queue, the global overflow queue, then steals half of a random
// peer's local queue.
type Executor struct {
	Metrics Metrics
	log     *klog.Logger
	global  *globalQueue

	mu    sync.RWMutex
	harts []*Hart

	// lastHart records which hart a given task last ran on, so Wake can
	// route it back there per spec.md §4.1's "a woken task is pushed to
	// its last-run hart's local queue".
	lastHartMu sync.Mutex
	lastHart   map[Runnable]khart.ID
}

// New builds an Executor with nHarts harts, each id 0..nHarts-1.
func New(nHarts int, log *klog.Logger) *Executor {
	if log == nil {
		log = klog.Default
	}
	ex := &Executor{
		log:      log,
		global:   newGlobalQueue(),
		lastHart: map[Runnable]khart.ID{},
	}
	for i := 0; i < nHarts; i++ {
		h := &Hart{
			ID:      khart.ID(i),
			local:   newDeque(256),
			preempt: newPreemptSlot(),
			ex:      ex,
		}
		w, err := khart.NewWakeSource()
		if err != nil {
			log.Error("hart wake source unavailable, idle loop will busy-spin", klog.Int("hart", i), klog.Err(err))
		} else {
			h.wake = w
		}
		ex.harts = append(ex.harts, h)
	}
	return ex
}

// NHarts reports how many harts the executor manages.
func (ex *Executor) NHarts() int { return len(ex.harts) }

// Close releases every hart's wake-source eventfd. Call once every Run
// goroutine has returned.
func (ex *Executor) Close() {
	for _, h := range ex.harts {
		if h.wake != nil {
			_ = h.wake.Close()
		}
	}
}

// Spawn enqueues r onto hart id's local deque, as if it had just been
// created there. Spawn never reports an error: an id outside the
// executor's harts silently discards the task, and a task spawned after
// every Run has returned stays queued and is never polled.
func (ex *Executor) Spawn(id khart.ID, r Runnable) {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	if int(id) >= len(ex.harts) {
		return
	}
	h := ex.harts[id]
	h.local.Push(r)
	ex.wakeHart(h)
}

// Wake reschedules r onto the local queue of whichever hart it last ran
// on (or hart 0, if it has never run), per spec.md §4.1.
func (ex *Executor) Wake(r Runnable) {
	ex.lastHartMu.Lock()
	id, ok := ex.lastHart[r]
	ex.lastHartMu.Unlock()
	if !ok {
		id = 0
	}
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	if int(id) >= len(ex.harts) {
		return
	}
	h := ex.harts[id]
	h.local.Push(r)
	ex.wakeHart(h)
}

// WakeFromInterrupt routes r to the current hart's preempt slot, giving it
// scheduling priority on that hart's very next pick -- the path used by
// interrupt-style completions (e.g. I/O), per spec.md §4.1.
func (ex *Executor) WakeFromInterrupt(current khart.ID, r Runnable) {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	if int(current) >= len(ex.harts) {
		return
	}
	h := ex.harts[current]
	if evicted := h.preempt.Set(r); evicted != nil {
		h.local.Push(evicted)
	} else {
		ex.Metrics.Preempted.Add(1)
	}
	ex.wakeHart(h)
}

// wakeHart pulls h out of an idle Wait, if it has a wake source and is
// actually parked; Wake is a no-op write to an eventfd nothing is polling,
// so calling it unconditionally after every enqueue is cheap and safe.
func (ex *Executor) wakeHart(h *Hart) {
	if h.wake == nil {
		return
	}
	if err := h.wake.Wake(); err != nil {
		ex.log.Warning("hart wake failed", klog.Int("hart", int(h.ID)), klog.Err(err))
	}
}

// pick implements spec.md §4.1's four-step scheduling order for hart h.
func (ex *Executor) pick(h *Hart) (Runnable, bool) {
	if r, ok := h.preempt.Take(); ok {
		return r, true
	}
	if r, ok := h.local.Pop(); ok {
		return r, true
	}
	if r, ok := ex.global.Pop(); ok {
		ex.Metrics.Overflowed.Add(1)
		return r, true
	}
	if r, ok := ex.stealFromRandomPeer(h); ok {
		ex.Metrics.Stolen.Add(1)
		return r, true
	}
	return nil, false
}

// stealFromRandomPeer steals half of a random peer hart's local queue,
// pushing all but the first stolen task onto h's own local queue and
// returning the first to run immediately.
func (ex *Executor) stealFromRandomPeer(h *Hart) (Runnable, bool) {
	ex.mu.RLock()
	peers := ex.harts
	ex.mu.RUnlock()
	if len(peers) <= 1 {
		return nil, false
	}

	start := rand.IntN(len(peers))
	for i := 0; i < len(peers); i++ {
		victim := peers[(start+i)%len(peers)]
		if victim.ID == h.ID {
			continue
		}
		n := victim.local.Len()
		if n == 0 {
			continue
		}
		half := (n + 1) / 2
		var first Runnable
		got := 0
		for got < half {
			r, ok := victim.local.Steal()
			if !ok {
				break
			}
			if got == 0 {
				first = r
			} else {
				h.local.Push(r)
			}
			got++
		}
		if got > 0 {
			return first, true
		}
	}
	return nil, false
}

// recordLastHart marks that r most recently ran on h, for Wake's routing.
func (ex *Executor) recordLastHart(r Runnable, id khart.ID) {
	ex.lastHartMu.Lock()
	ex.lastHart[r] = id
	ex.lastHartMu.Unlock()
}

func (ex *Executor) forgetLastHart(r Runnable) {
	ex.lastHartMu.Lock()
	delete(ex.lastHart, r)
	ex.lastHartMu.Unlock()
}

// Run drives hart id's scheduling loop until ctx is cancelled. It is
// intended to be called once per hart, each from its own goroutine pinned
// via khart.Pin.
func (ex *Executor) Run(ctx context.Context, id khart.ID) {
	ex.mu.RLock()
	h := ex.harts[id]
	ex.mu.RUnlock()

	for {
		if ctx.Err() != nil {
			return
		}
		r, ok := ex.pick(h)
		if !ok {
			if h.wake != nil {
				// Park until Spawn/Wake/WakeFromInterrupt signals this
				// hart's eventfd or ctx ends, instead of busy-spinning.
				_ = h.wake.Wait(ctx)
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}
		ex.Metrics.Polled.Add(1)
		ex.recordLastHart(r, id)
		if done := r.Poll(); done {
			ex.forgetLastHart(r)
		}
	}
}
