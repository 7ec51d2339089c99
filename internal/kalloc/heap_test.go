package kalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllocReturnsZeroedRightSizedSlice(t *testing.T) {
	h := NewHeap()
	buf := h.Alloc(20)
	assert.Len(t, buf, 20)
	for _, b := range buf {
		assert.Equal(t, byte(0), b)
	}
}

func TestAllocReuseAfterFree(t *testing.T) {
	h := NewHeap()
	buf := h.Alloc(32)
	buf[0] = 0xFF
	h.Free(buf)

	reused := h.Alloc(32)
	assert.Equal(t, byte(0), reused[0], "reused buffer must be zeroed")
}

func TestAllocAboveLargestClassFallsBackToRawSlice(t *testing.T) {
	h := NewHeap()
	buf := h.Alloc(FrameSize + 1)
	assert.Len(t, buf, FrameSize+1)
}

func TestFreeOfUnknownCapacityIsNoop(t *testing.T) {
	h := NewHeap()
	assert.NotPanics(t, func() {
		h.Free(make([]byte, 17, 17))
	})
}
