package paging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-rvkernel/internal/khart"
	"github.com/joeycumines/go-rvkernel/internal/klog"
)

// AddrRange is an inclusive-start/exclusive-end virtual address range, the
// unit a TLB shootdown covers.
type AddrRange struct {
	Start, End uintptr
}

// CPUMask is an atomic bitset of harts that currently have some Table
// loaded, the Go analog of Virt.cpu_mask.
type CPUMask struct {
	bits atomic.Uint64
}

// Set marks hart id as present in the mask.
func (m *CPUMask) Set(id khart.ID) { m.bits.Or(1 << id) }

// Clear removes hart id from the mask.
func (m *CPUMask) Clear(id khart.ID) { m.bits.And(^(uint64(1) << id)) }

// Has reports whether id is present in the mask.
func (m *CPUMask) Has(id khart.ID) bool { return m.bits.Load()&(1<<id) != 0 }

// Each invokes fn for every hart id currently present in the mask.
func (m *CPUMask) Each(fn func(khart.ID)) {
	bits := m.bits.Load()
	for i := khart.ID(0); bits != 0; i++ {
		if bits&1 != 0 {
			fn(i)
		}
		bits >>= 1
	}
}

// FenceRequest is delivered to a hart's fence inbox when another hart needs
// it to invalidate a TLB range before continuing.
type FenceRequest struct {
	Range AddrRange
	Ack   chan<- struct{}
}

// Fencer fans a remote TLB invalidation out to every hart in a CPUMask and
// waits for acks, grounded on longpoll.Channel's context-timed collection
// loop -- inverted here from "collect N values from one producer" to
// "collect one ack each from N consumers, within a deadline, otherwise
// degrade instead of hanging".
type Fencer struct {
	mu       sync.RWMutex
	inboxes  map[khart.ID]chan<- FenceRequest
	log      *klog.Logger
	gen      atomic.Uint64 // incremented on every unacked degrade, see RemoteFence
}

// NewFencer builds an empty Fencer.
func NewFencer(log *klog.Logger) *Fencer {
	if log == nil {
		log = klog.Default
	}
	return &Fencer{inboxes: map[khart.ID]chan<- FenceRequest{}, log: log}
}

// Register associates a hart id with the channel its local loop drains
// FenceRequests from. Harts register once at boot.
func (f *Fencer) Register(id khart.ID, inbox chan<- FenceRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inboxes[id] = inbox
}

// Unregister removes a hart's inbox, e.g. on hart shutdown.
func (f *Fencer) Unregister(id khart.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inboxes, id)
}

// Generation returns the degrade counter every hart should recheck on its
// next Table load, per spec.md §9's remote_sfence_vma fallback.
func (f *Fencer) Generation() uint64 { return f.gen.Load() }

// RemoteFence issues rng to every hart bit set in mask except self, and
// waits up to timeout for every targeted hart to ack. Harts that don't ack
// in time are not retried indefinitely: the Fencer instead bumps its
// generation counter and logs a warning (or panics, under the kerneldebug
// build tag) so the degrade path in spec.md §9 can run instead of the
// caller blocking forever on a hart that will never ack (e.g. one that
// crashed).
func (f *Fencer) RemoteFence(ctx context.Context, mask *CPUMask, self khart.ID, rng AddrRange, timeout time.Duration) {
	f.mu.RLock()
	var targets []chan<- FenceRequest
	mask.Each(func(id khart.ID) {
		if id == self {
			return
		}
		if ch, ok := f.inboxes[id]; ok {
			targets = append(targets, ch)
		}
	})
	f.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ack := make(chan struct{}, len(targets))
	for i, inbox := range targets {
		select {
		case inbox <- FenceRequest{Range: rng, Ack: ack}:
		case <-tctx.Done():
			// harts i.. never received the request, so none of them can ack.
			f.degrade(len(targets) - i)
			return
		}
	}

	got := 0
	for got < len(targets) {
		select {
		case <-ack:
			got++
		case <-tctx.Done():
			f.degrade(len(targets) - got)
			return
		}
	}
}

func (f *Fencer) degrade(missing int) {
	f.gen.Add(1)
	f.log.Warning("remote_sfence_vma timed out, degrading to generation recheck",
		klog.Int("missing_acks", missing),
		klog.Uint64("generation", f.gen.Load()))
	degradeDebugHook(f, missing)
}
