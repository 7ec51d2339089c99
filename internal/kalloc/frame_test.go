package kalloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-rvkernel/internal/kerrno"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	a := NewFrameAllocator(4)
	assert.EqualValues(t, 4, a.Available())

	idx, err := a.Alloc()
	require.NoError(t, err)
	assert.EqualValues(t, 3, a.Available())

	a.Free(idx)
	assert.EqualValues(t, 4, a.Available())
}

func TestAllocExhaustionReturnsENOMEM(t *testing.T) {
	a := NewFrameAllocator(2)
	_, err := a.Alloc()
	require.NoError(t, err)
	_, err = a.Alloc()
	require.NoError(t, err)

	_, err = a.Alloc()
	assert.ErrorIs(t, err, kerrno.ENOMEM)
}

func TestAllocAllFramesUnique(t *testing.T) {
	n := 64
	a := NewFrameAllocator(n)
	seen := make(map[FrameIndex]bool, n)
	for i := 0; i < n; i++ {
		idx, err := a.Alloc()
		require.NoError(t, err)
		assert.False(t, seen[idx], "frame %d double-allocated", idx)
		seen[idx] = true
	}
	assert.EqualValues(t, 0, a.Available())
}

func TestConcurrentAllocFreeNoDoubleAllocation(t *testing.T) {
	n := 256
	a := NewFrameAllocator(n)

	var wg sync.WaitGroup
	results := make(chan FrameIndex, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := a.Alloc()
			require.NoError(t, err)
			results <- idx
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[FrameIndex]bool, n)
	for idx := range results {
		assert.False(t, seen[idx])
		seen[idx] = true
	}
	assert.Len(t, seen, n)
}

func TestTotal(t *testing.T) {
	a := NewFrameAllocator(10)
	assert.Equal(t, 10, a.Total())
}
