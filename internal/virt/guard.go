package virt

import (
	"context"

	"github.com/joeycumines/go-rvkernel/internal/kerrno"
	"github.com/joeycumines/go-rvkernel/internal/paging"
)

// CommitGuard is the safe path for a large or vectorised user-buffer
// access: it holds the commit-guard's read lock for its whole lifetime
// (excluding any concurrent Map/Unmap/Protect on this Virt), commits every
// page the requested range touches up front, and exposes them as a slice
// of byte slices. Per spec.md §4.4, this exists because a raw commit can
// race an unmap from another thread and fault inside kernel context,
// where there is no task to deliver a recovery signal to; pre-committing
// under the guard removes that race for the buffer's lifetime.
//
// Each entry in Pages is the actual frame storage kalloc.FrameAllocator
// holds for the page Commit just resolved (via Table.Lookup), not a
// throwaway copy -- a write through the guard and a later read through
// this same Virt (or a sibling view sharing the same Phys ancestry)
// observe the same bytes.
type CommitGuard struct {
	v      *Virt
	Pages  [][]byte
	closed bool
}

// GuardPages takes the commit guard, commits every page overlapping r,
// and returns the guard. Call Release when done.
func (v *Virt) GuardPages(ctx context.Context, r paging.AddrRange, access paging.Attr) (*CommitGuard, error) {
	if err := v.guard.RLock(ctx); err != nil {
		return nil, err
	}

	g := &CommitGuard{v: v}
	for va := r.Start; va < r.End; va += pageSize {
		if err := v.Commit(va, access); err != nil {
			v.guard.RUnlock()
			return nil, err
		}
		v.mu.RLock()
		frame, _, ok := v.Table.Lookup(va)
		v.mu.RUnlock()
		if !ok {
			v.guard.RUnlock()
			return nil, kerrno.EFAULT
		}
		g.Pages = append(g.Pages, v.alloc.Frame(frame))
	}
	return g, nil
}

// Release drops the commit guard's read lock, allowing structural changes
// (Map/Unmap/Protect) to proceed again.
func (g *CommitGuard) Release() {
	if g.closed {
		return
	}
	g.closed = true
	g.v.guard.RUnlock()
}
