package kalloc

import "sync"

// sizeClasses mirrors catrate's categoryDataPool idea of one sync.Pool per
// fixed-size bucket: every kernel heap allocation rounds up to the nearest
// class, so freed blocks are always fungible within their class.
var sizeClasses = []int{16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// Heap is a lock-free (in the sense of never taking an explicit mutex; the
// contention-heavy path lives entirely inside sync.Pool) slab allocator for
// small kernel objects that don't warrant a whole frame.
type Heap struct {
	pools []sync.Pool
}

// NewHeap constructs a Heap with one pool per size class.
func NewHeap() *Heap {
	h := &Heap{pools: make([]sync.Pool, len(sizeClasses))}
	for i, sz := range sizeClasses {
		sz := sz
		h.pools[i].New = func() any {
			return make([]byte, sz)
		}
	}
	return h
}

// classFor returns the index of the smallest size class >= n, or -1 if n
// exceeds every class (callers should fall back to FrameAllocator directly).
func classFor(n int) int {
	for i, sz := range sizeClasses {
		if n <= sz {
			return i
		}
	}
	return -1
}

// Alloc returns a zeroed byte slice of at least n bytes, reused from the
// appropriate size class's pool when available.
func (h *Heap) Alloc(n int) []byte {
	c := classFor(n)
	if c < 0 {
		return make([]byte, n)
	}
	buf := h.pools[c].Get().([]byte)
	for i := range buf {
		buf[i] = 0
	}
	return buf[:n:sizeClasses[c]]
}

// Free returns buf to its size class's pool. buf must have been obtained
// from Alloc (or share its exact capacity); passing anything else is a
// silent no-op, matching the teacher's pool discipline of never asserting
// on what the caller hands back.
func (h *Heap) Free(buf []byte) {
	c := classForCap(cap(buf))
	if c < 0 {
		return
	}
	h.pools[c].Put(buf[:cap(buf)])
}

func classForCap(capacity int) int {
	for i, sz := range sizeClasses {
		if sz == capacity {
			return i
		}
	}
	return -1
}
