package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushPopOrder(t *testing.T) {
	b := New[int](4)
	b.PushBack(1)
	b.PushBack(2)
	b.PushBack(3)

	v, ok := b.PopFront()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, b.Len())
}

func TestGrowBeyondInitialCapacity(t *testing.T) {
	b := New[int](2)
	for i := 0; i < 10; i++ {
		b.PushBack(i)
	}
	assert.Equal(t, 10, b.Len())
	for i := 0; i < 10; i++ {
		v, ok := b.PopFront()
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok := b.PopFront()
	assert.False(t, ok)
}

func TestGrowPreservesWrapAroundOrder(t *testing.T) {
	b := New[int](4)
	b.PushBack(1)
	b.PushBack(2)
	b.PushBack(3)
	b.PushBack(4)
	// pop two, push two more, so the logical window wraps past the array end
	v1, _ := b.PopFront()
	v2, _ := b.PopFront()
	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)
	b.PushBack(5)
	b.PushBack(6)
	// forces growth while the window straddles the wrap point
	b.PushBack(7)

	var got []int
	for {
		v, ok := b.PopFront()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5, 6, 7}, got)
}

func TestRemoveBefore(t *testing.T) {
	b := New[int](8)
	for i := 0; i < 5; i++ {
		b.PushBack(i)
	}
	b.RemoveBefore(3)
	assert.Equal(t, 2, b.Len())
	v, _ := b.PopFront()
	assert.Equal(t, 3, v)
}

func TestSearch(t *testing.T) {
	b := New[int](8)
	for _, v := range []int{1, 3, 5, 7, 9} {
		b.PushBack(v)
	}
	assert.Equal(t, 0, b.Search(0))
	assert.Equal(t, 2, b.Search(5))
	assert.Equal(t, 3, b.Search(6))
	assert.Equal(t, 5, b.Search(100))
}

func TestGetPanicsOutOfRange(t *testing.T) {
	b := New[int](4)
	b.PushBack(1)
	assert.Panics(t, func() { b.Get(1) })
	assert.Panics(t, func() { b.Get(-1) })
}

func TestNewPanicsOnNonPowerOfTwo(t *testing.T) {
	assert.Panics(t, func() { New[int](3) })
	assert.Panics(t, func() { New[int](0) })
}
