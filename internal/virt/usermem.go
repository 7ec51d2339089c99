package virt

import (
	"context"

	"github.com/joeycumines/go-rvkernel/internal/paging"
)

// Read and Write below let a Virt satisfy trap.UserMemory directly (kept
// here rather than in trap itself, since trap must not depend on virt).
// Both go through GuardPages, so a fault partway through the range is
// reported the same way a single-page Commit fault would be, and a
// concurrent Unmap of the range is impossible for the access's duration.
//
// GuardPages' Pages slices are the real kalloc.FrameAllocator storage for
// each committed frame (see guard.go), so a Write here is observable by
// any later reader that resolves the same frame -- a sibling CoW view's
// Read, a backend write-back via phys.Flush, or a direct kalloc.Frame
// lookup -- not just a later Read through this same Virt.

func (v *Virt) pageRange(uaddr uint64, n int) paging.AddrRange {
	start := uintptr(uaddr)
	aligned := start - start%pageSize
	end := start + uintptr(n)
	return paging.AddrRange{Start: aligned, End: end}
}

// Read implements trap.UserMemory.
func (v *Virt) Read(uaddr uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	r := v.pageRange(uaddr, len(dst))
	g, err := v.GuardPages(context.Background(), r, paging.AttrRead)
	if err != nil {
		return err
	}
	defer g.Release()

	off := int(uintptr(uaddr) - r.Start)
	copyFromPages(dst, g.Pages, off)
	return nil
}

// Write implements trap.UserMemory.
func (v *Virt) Write(uaddr uint64, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	r := v.pageRange(uaddr, len(src))
	g, err := v.GuardPages(context.Background(), r, paging.AttrWrite)
	if err != nil {
		return err
	}
	defer g.Release()

	off := int(uintptr(uaddr) - r.Start)
	copyToPages(g.Pages, off, src)
	return nil
}

func copyFromPages(dst []byte, pages [][]byte, off int) {
	pageIdx, pageOff := off/pageSize, off%pageSize
	for len(dst) > 0 && pageIdx < len(pages) {
		n := copy(dst, pages[pageIdx][pageOff:])
		dst = dst[n:]
		pageIdx++
		pageOff = 0
	}
}

func copyToPages(pages [][]byte, off int, src []byte) {
	pageIdx, pageOff := off/pageSize, off%pageSize
	for len(src) > 0 && pageIdx < len(pages) {
		n := copy(pages[pageIdx][pageOff:], src)
		src = src[n:]
		pageIdx++
		pageOff = 0
	}
}
