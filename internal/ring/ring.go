// Package ring provides a generic power-of-two ring buffer, adapted from
// catrate/ring.go's ringBuffer[E]. It backs the FIFO of kasync.MPSC.
package ring

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// Buffer is a growable ring buffer over an ordered element type.
type Buffer[E constraints.Ordered] struct {
	s    []E
	r, w uint
}

// New creates a Buffer with the given initial capacity, which must be a
// power of two, matching catrate.newRingBuffer's constraint (its mask trick
// requires it).
func New[E constraints.Ordered](size int) *Buffer[E] {
	if size <= 0 || size&(size-1) != 0 {
		panic("ring: size must be a power of 2")
	}
	return &Buffer[E]{s: make([]E, size)}
}

func (b *Buffer[E]) mask(v uint) uint { return v & (uint(len(b.s)) - 1) }

// Len returns the number of elements currently stored.
func (b *Buffer[E]) Len() int { return int(b.w - b.r) }

// Cap returns the buffer's current capacity.
func (b *Buffer[E]) Cap() int { return len(b.s) }

// Get returns the i'th element (0 = oldest).
func (b *Buffer[E]) Get(i int) E {
	if i < 0 || i >= b.Len() {
		panic("ring: get: index out of range")
	}
	return b.s[b.mask(b.r+uint(i))]
}

// PushBack appends value, growing the underlying array if full.
func (b *Buffer[E]) PushBack(value E) {
	if b.Len() == len(b.s) {
		b.grow()
	}
	b.s[b.mask(b.w)] = value
	b.w++
}

// PopFront removes and returns the oldest element.
func (b *Buffer[E]) PopFront() (E, bool) {
	var zero E
	if b.Len() == 0 {
		return zero, false
	}
	v := b.s[b.mask(b.r)]
	b.s[b.mask(b.r)] = zero
	b.r++
	return v, true
}

// RemoveBefore discards the first index elements (0 <= index <= Len()).
func (b *Buffer[E]) RemoveBefore(index int) {
	if index < 0 || index > b.Len() {
		panic("ring: remove before: index out of range")
	}
	b.r += uint(index)
}

// Search returns the index of the first element >= value, using the same
// sort.Search-over-ring idiom as catrate.ringBuffer.Search.
func (b *Buffer[E]) Search(value E) int {
	return sort.Search(b.Len(), func(i int) bool {
		return b.Get(i) >= value
	})
}

func (b *Buffer[E]) grow() {
	newCap := len(b.s) * 2
	if newCap == 0 {
		newCap = 1
	}
	newS := make([]E, newCap)
	n := b.Len()
	for i := 0; i < n; i++ {
		newS[i] = b.Get(i)
	}
	b.s = newS
	b.r = 0
	b.w = uint(n)
}
