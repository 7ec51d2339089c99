package virt

import (
	"sync"

	"github.com/joeycumines/go-rvkernel/internal/khart"
)

var (
	loadedMu sync.Mutex
	loaded   = map[khart.ID]*Virt{}
)

// Load installs v as the address space currently loaded on hart id,
// simulating a satp write: it sets id in v's cpu_mask, clears it from
// whatever was previously loaded there, and returns that prior Virt (nil
// if none).
func Load(id khart.ID, v *Virt) (prev *Virt) {
	loadedMu.Lock()
	prev = loaded[id]
	loaded[id] = v
	loadedMu.Unlock()

	if prev != nil && prev != v {
		prev.cpuMask.Clear(id)
	}
	if v != nil {
		v.cpuMask.Set(id)
	}
	return prev
}

// Loaded returns the Virt currently loaded on hart id, if any.
func Loaded(id khart.ID) (*Virt, bool) {
	loadedMu.Lock()
	defer loadedMu.Unlock()
	v, ok := loaded[id]
	return v, ok
}

// Runnable is the minimal pollable-task interface an executor runs. It is
// declared locally (rather than imported from internal/exec) so that
// adapting a task's poll step doesn't create a package dependency cycle;
// internal/exec.Runnable already satisfies it structurally.
type Runnable interface {
	Poll() (done bool)
}

// loadAdapter wraps a task's Runnable so that each poll step first loads
// its address space on the current hart, per spec.md §4.4: "the executor
// does NOT call load between tasks; instead each task future is wrapped
// in an adapter whose own polling step performs load then polls the inner
// future."
type loadAdapter struct {
	hart  khart.ID
	space *Virt
	inner Runnable
}

// WithLoadedAddressSpace wraps inner so that every poll loads space on
// hart before delegating to inner's own Poll.
func WithLoadedAddressSpace(hart khart.ID, space *Virt, inner Runnable) Runnable {
	return &loadAdapter{hart: hart, space: space, inner: inner}
}

func (a *loadAdapter) Poll() (done bool) {
	Load(a.hart, a.space)
	return a.inner.Poll()
}
