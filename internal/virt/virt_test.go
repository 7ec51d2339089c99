package virt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-rvkernel/internal/kalloc"
	"github.com/joeycumines/go-rvkernel/internal/khart"
	"github.com/joeycumines/go-rvkernel/internal/paging"
	"github.com/joeycumines/go-rvkernel/internal/phys"
)

func newTestVirt(t *testing.T) (*Virt, *kalloc.FrameAllocator, *paging.Fencer) {
	t.Helper()
	a := kalloc.NewFrameAllocator(4096)
	f := paging.NewFencer(nil)
	v, err := New(a, f)
	require.NoError(t, err)
	return v, a, f
}

func TestMapCommitLookupRoundTrip(t *testing.T) {
	v, a, _ := newTestVirt(t)
	p := phys.NewAnonymous(a)
	r := paging.AddrRange{Start: 0x1000, End: 0x3000}

	require.NoError(t, v.Map(r, p, 0, paging.AttrRead|paging.AttrWrite))
	require.NoError(t, v.Commit(0x1000, paging.AttrRead))

	frame, attr, ok := v.Table.Lookup(0x1000)
	require.True(t, ok)
	assert.True(t, attr.Subset(paging.AttrRead|paging.AttrWrite|paging.AttrValid))
	assert.NotZero(t, frame)
}

func TestMapOverlapReturnsEEXIST(t *testing.T) {
	v, a, _ := newTestVirt(t)
	p := phys.NewAnonymous(a)

	require.NoError(t, v.Map(paging.AddrRange{Start: 0x1000, End: 0x3000}, p, 0, paging.AttrRead))
	err := v.Map(paging.AddrRange{Start: 0x2000, End: 0x4000}, p, 0, paging.AttrRead)
	require.Error(t, err)
}

func TestCommitWithoutMappingFaults(t *testing.T) {
	v, _, _ := newTestVirt(t)
	err := v.Commit(0x9000, paging.AttrRead)
	require.Error(t, err)
}

func TestCommitExceedingMappingAttrsFaults(t *testing.T) {
	v, a, _ := newTestVirt(t)
	p := phys.NewAnonymous(a)
	require.NoError(t, v.Map(paging.AddrRange{Start: 0x1000, End: 0x2000}, p, 0, paging.AttrRead))

	err := v.Commit(0x1000, paging.AttrRead|paging.AttrWrite)
	require.Error(t, err)
}

func TestUnmapRemovesMappingAndPTE(t *testing.T) {
	v, a, _ := newTestVirt(t)
	p := phys.NewAnonymous(a)
	r := paging.AddrRange{Start: 0x1000, End: 0x2000}
	require.NoError(t, v.Map(r, p, 0, paging.AttrRead))
	require.NoError(t, v.Commit(0x1000, paging.AttrRead))

	require.NoError(t, v.Unmap(r))

	_, _, ok := v.Table.Lookup(0x1000)
	assert.False(t, ok)

	err := v.Commit(0x1000, paging.AttrRead)
	require.Error(t, err)
}

func TestProtectNarrowsAttrs(t *testing.T) {
	v, a, _ := newTestVirt(t)
	p := phys.NewAnonymous(a)
	r := paging.AddrRange{Start: 0x1000, End: 0x2000}
	require.NoError(t, v.Map(r, p, 0, paging.AttrRead|paging.AttrWrite))
	require.NoError(t, v.Commit(0x1000, paging.AttrRead))

	require.NoError(t, v.Protect(r, paging.AttrRead))

	err := v.Commit(0x1000, paging.AttrWrite)
	require.Error(t, err)
}

// TestCommitGuardBlocksUnmap exercises spec.md §8 scenario 4: while a
// CommitGuard is held, a concurrent Unmap on the same Virt must not
// proceed until the guard releases.
func TestCommitGuardBlocksUnmap(t *testing.T) {
	v, a, _ := newTestVirt(t)
	p := phys.NewAnonymous(a)
	r := paging.AddrRange{Start: 0x1000, End: 0x2000}
	require.NoError(t, v.Map(r, p, 0, paging.AttrRead))

	guard, err := v.GuardPages(context.Background(), r, paging.AttrRead)
	require.NoError(t, err)
	require.Len(t, guard.Pages, 1)

	unmapDone := make(chan struct{})
	go func() {
		_ = v.Unmap(r)
		close(unmapDone)
	}()

	select {
	case <-unmapDone:
		t.Fatal("unmap proceeded while commit guard was held")
	case <-time.After(50 * time.Millisecond):
	}

	guard.Release()

	select {
	case <-unmapDone:
	case <-time.After(time.Second):
		t.Fatal("unmap never completed after guard release")
	}

	_, _, ok := v.Table.Lookup(0x1000)
	assert.False(t, ok)
}

// TestUnmapShootsDownRemoteHart exercises spec.md §8 scenario 5: another
// hart with this Virt loaded must receive (and ack) a remote fence on
// Unmap, preventing it from continuing to observe a stale mapping.
func TestUnmapShootsDownRemoteHart(t *testing.T) {
	v, _, fencer := newTestVirt(t)
	a := v.alloc
	p := phys.NewAnonymous(a)
	r := paging.AddrRange{Start: 0x1000, End: 0x2000}
	require.NoError(t, v.Map(r, p, 0, paging.AttrRead))
	require.NoError(t, v.Commit(0x1000, paging.AttrRead))

	const remote khart.ID = 1
	v.CPUMask().Set(remote)

	inbox := make(chan paging.FenceRequest, 1)
	fencer.Register(remote, inbox)
	acked := make(chan struct{})
	go func() {
		req := <-inbox
		req.Ack <- struct{}{}
		close(acked)
	}()

	require.NoError(t, v.Unmap(r))

	select {
	case <-acked:
	case <-time.After(time.Second):
		t.Fatal("remote hart never received a fence request")
	}
}

func TestUnmapDegradesOnUnresponsiveRemoteHart(t *testing.T) {
	v, _, fencer := newTestVirt(t)
	r := paging.AddrRange{Start: 0x1000, End: 0x2000}

	const remote khart.ID = 2
	v.CPUMask().Set(remote)
	inbox := make(chan paging.FenceRequest, 1)
	fencer.Register(remote, inbox) // never drained: remote never acks

	before := fencer.Generation()
	require.NoError(t, v.Unmap(r))
	assert.Greater(t, fencer.Generation(), before)
}

func TestPickGapAvoidsExistingMappings(t *testing.T) {
	v, a, _ := newTestVirt(t)
	p := phys.NewAnonymous(a)
	region := paging.AddrRange{Start: 0x1000, End: 0x10000}
	require.NoError(t, v.Map(paging.AddrRange{Start: 0x2000, End: 0x4000}, p, 0, paging.AttrRead))

	for i := 0; i < 32; i++ {
		addr, err := v.PickGap(region, 0x1000)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, addr, region.Start)
		assert.LessOrEqual(t, addr+0x1000, region.End)
		assert.False(t, addr < 0x4000 && addr+0x1000 > 0x2000, "gap overlaps existing mapping")
	}
}

func TestPickGapReturnsENOMEMWhenRegionFull(t *testing.T) {
	v, a, _ := newTestVirt(t)
	p := phys.NewAnonymous(a)
	region := paging.AddrRange{Start: 0x1000, End: 0x2000}
	require.NoError(t, v.Map(region, p, 0, paging.AttrRead))

	_, err := v.PickGap(region, 0x1000)
	require.Error(t, err)
}

// TestUserMemoryWriteThenReadRoundTripsRealData exercises the
// trap.UserMemory path end to end: Write must land in the real frame
// storage Commit resolved, not a throwaway buffer, so a later Read (or
// any other resolver of the same frame) observes exactly what was
// written.
func TestUserMemoryWriteThenReadRoundTripsRealData(t *testing.T) {
	v, a, _ := newTestVirt(t)
	p := phys.NewAnonymous(a)
	r := paging.AddrRange{Start: 0x1000, End: 0x3000}
	require.NoError(t, v.Map(r, p, 0, paging.AttrRead|paging.AttrWrite))

	want := make([]byte, 10)
	for i := range want {
		want[i] = byte(i + 1)
	}
	// straddle the page boundary at 0x2000, to exercise copyToPages/
	// copyFromPages' multi-page loop as well as the single-page case.
	const uaddr = 0x1ffc
	require.NoError(t, v.Write(uaddr, want))

	got := make([]byte, len(want))
	require.NoError(t, v.Read(uaddr, got))
	assert.Equal(t, want, got)

	// the bytes must also be visible by resolving the underlying frame
	// directly, proving Write landed in kalloc's real storage and not a
	// guard-local copy.
	frame, _, ok := v.Table.Lookup(0x1000)
	require.True(t, ok)
	assert.Equal(t, want[:4], a.Frame(frame)[pageSize-4:])
}

type countingRunnable struct{ polls int }

func (r *countingRunnable) Poll() (done bool) {
	r.polls++
	return r.polls >= 3
}

func TestWithLoadedAddressSpaceLoadsBeforeEachPoll(t *testing.T) {
	v, _, _ := newTestVirt(t)
	const hart khart.ID = 5
	inner := &countingRunnable{}
	task := WithLoadedAddressSpace(hart, v, inner)

	for !task.Poll() {
	}
	assert.Equal(t, 3, inner.polls)

	loadedV, ok := Loaded(hart)
	require.True(t, ok)
	assert.Same(t, v, loadedV)
	assert.True(t, v.CPUMask().Has(hart))
}
