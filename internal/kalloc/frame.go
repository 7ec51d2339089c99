// Package kalloc provides the kernel's two lowest-level allocators: a
// lock-free physical-frame free-list and a lock-free slab heap, both
// grounded on the CAS-retry-loop shape of
// other_examples/a05db883_ha1tch-ual__worksteal.go.go's WSDeque, and on
// catrate/limiter.go's categoryDataPool size-classed sync.Pool reuse.
package kalloc

import (
	"sync/atomic"

	"github.com/joeycumines/go-rvkernel/internal/kerrno"
)

// FrameSize is the fixed physical-page size the kernel manages, per
// spec.md's "Frame: a physical page (4 KiB)".
const FrameSize = 4096

// FrameIndex identifies one physical frame by its position in the frame
// table owned by a FrameAllocator.
type FrameIndex uint32

// node is one entry in the free-list's singly-linked CAS chain. The free
// list links frames by index rather than pointer so the allocator never
// needs to chase a pointer through frame memory that a Phys or page table
// might concurrently be populating right after allocation.
type node struct {
	next FrameIndex // index of next free frame, or sentinel if none
}

const sentinel FrameIndex = ^FrameIndex(0)

// taggedHead packs a free-list head index with a version tag into one
// 64-bit word, the same ABA-guard trick WSDeque's bottom/top indices use
// (there, a monotonic counter; here, a tag incremented on every successful
// pop and push so a racing CAS from a stale read can never succeed after the slot
// has been popped and repushed).
type taggedHead struct {
	idx FrameIndex
	tag uint32
}

func pack(h taggedHead) uint64 {
	return uint64(h.idx) | uint64(h.tag)<<32
}

func unpack(v uint64) taggedHead {
	return taggedHead{idx: FrameIndex(v), tag: uint32(v >> 32)}
}

// FrameAllocator is a lock-free free-list over a fixed-size frame table.
// Frames are never returned to the operating system: the table is sized
// once at boot from the memory map handed to the kernel.
type FrameAllocator struct {
	free    []node
	head    atomic.Uint64
	avail   atomic.Int64
	storage [][FrameSize]byte // real backing storage for each frame index
}

// NewFrameAllocator builds an allocator over count frames, all initially
// free and linked in index order.
func NewFrameAllocator(count int) *FrameAllocator {
	if count <= 0 {
		panic("kalloc: frame count must be positive")
	}
	a := &FrameAllocator{free: make([]node, count), storage: make([][FrameSize]byte, count)}
	for i := 0; i < count-1; i++ {
		a.free[i].next = FrameIndex(i + 1)
	}
	a.free[count-1].next = sentinel
	a.head.Store(pack(taggedHead{idx: 0, tag: 0}))
	a.avail.Store(int64(count))
	return a
}

// Frame returns the raw byte storage backing frame idx -- a
// FrameSize-length slice into the allocator's fixed frame table. This is
// the actual memory a real frame's content lives in: bare ownership
// tracking (Alloc/Free) has nothing to say about what bytes a committed
// page holds, so callers that need to read or write frame content go
// through this instead.
func (a *FrameAllocator) Frame(idx FrameIndex) []byte {
	if int(idx) >= len(a.storage) {
		panic("kalloc: frame: index out of range")
	}
	return a.storage[idx][:]
}

// Alloc pops one frame off the free list, retrying the CAS on contention
// exactly as WSDeque.Pop retries on a lost race for the last element.
func (a *FrameAllocator) Alloc() (FrameIndex, error) {
	for {
		old := unpack(a.head.Load())
		if old.idx == sentinel {
			return 0, kerrno.ENOMEM
		}
		next := a.free[old.idx].next
		newHead := taggedHead{idx: next, tag: old.tag + 1}
		if a.head.CompareAndSwap(pack(old), pack(newHead)) {
			a.avail.Add(-1)
			return old.idx, nil
		}
	}
}

// Free pushes idx back onto the free list.
func (a *FrameAllocator) Free(idx FrameIndex) {
	if int(idx) >= len(a.free) {
		panic("kalloc: free: index out of range")
	}
	for {
		old := unpack(a.head.Load())
		a.free[idx].next = old.idx
		newHead := taggedHead{idx: idx, tag: old.tag + 1}
		if a.head.CompareAndSwap(pack(old), pack(newHead)) {
			a.avail.Add(1)
			return
		}
	}
}

// Available reports the number of frames currently on the free list.
func (a *FrameAllocator) Available() int64 {
	return a.avail.Load()
}

// Total reports the fixed frame-table size.
func (a *FrameAllocator) Total() int {
	return len(a.free)
}
