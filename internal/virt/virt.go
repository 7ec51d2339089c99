// Package virt implements an address-space manager: a sorted range map of
// Mappings over a three-level page table, lazy page-fault-driven commit,
// and TLB shootdown fan-out on every layout change.
//
// Grounded on catrate/ring.go's sort.Search-based binary search -- applied
// here to a sorted mapping slice instead of a ring buffer -- for range
// lookup, and spec.md's commit-guard description for the upgradable-lock
// semantics (internal/kasync.RWMutex backs the guard).
package virt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/joeycumines/go-rvkernel/internal/kalloc"
	"github.com/joeycumines/go-rvkernel/internal/kasync"
	"github.com/joeycumines/go-rvkernel/internal/kerrno"
	"github.com/joeycumines/go-rvkernel/internal/khart"
	"github.com/joeycumines/go-rvkernel/internal/paging"
	"github.com/joeycumines/go-rvkernel/internal/phys"
)

// pageSize matches kalloc's frame size: one page table entry per frame.
const pageSize = kalloc.FrameSize

// fenceTimeout bounds how long a structural Virt change waits for every
// other hart to ack a remote TLB shootdown before RemoteFence degrades
// instead of blocking indefinitely on a hart that will never respond.
const fenceTimeout = 50 * time.Millisecond

// Mapping is one entry in a Virt's range map: a contiguous virtual range
// backed by a Phys, starting at PhysIndex pages into that Phys.
type Mapping struct {
	Range     paging.AddrRange
	Phys      *phys.Phys
	PhysIndex uint64
	Attr      paging.Attr
}

// Virt is one task's (or the kernel's) address space: a range map plus the
// page table it projects onto, and the machinery to keep every hart's TLB
// coherent with it.
type Virt struct {
	alloc  *kalloc.FrameAllocator
	fencer *paging.Fencer

	// guard implements the commit-guard: a long-lived RLock blocks every
	// structural change (Map/Unmap/Protect each take the exclusive side),
	// while also serializing structural changes against each other (the
	// writer gate inside has capacity one).
	guard *kasync.RWMutex

	mu       sync.RWMutex // protects mappings and Table below
	mappings []*Mapping   // sorted by Range.Start
	Table    *paging.Table

	cpuMask paging.CPUMask
}

// New creates an empty address space backed by a fresh page table.
func New(alloc *kalloc.FrameAllocator, fencer *paging.Fencer) (*Virt, error) {
	t, err := paging.NewTable(alloc)
	if err != nil {
		return nil, err
	}
	return &Virt{
		alloc:  alloc,
		fencer: fencer,
		guard:  kasync.NewRWMutex(),
		Table:  t,
	}, nil
}

// CPUMask returns the set of harts this address space is currently loaded
// on, used by RemoteFence to target exactly the harts that need a TLB
// shootdown.
func (v *Virt) CPUMask() *paging.CPUMask { return &v.cpuMask }

// indexOf returns the insertion/lookup index of the first mapping whose
// Range.Start is >= addr, via binary search over the sorted mapping slice.
func (v *Virt) indexOf(addr uintptr) int {
	return sort.Search(len(v.mappings), func(i int) bool {
		return v.mappings[i].Range.Start >= addr
	})
}

// find returns the mapping containing addr, if any.
func (v *Virt) find(addr uintptr) (*Mapping, bool) {
	i := v.indexOf(addr)
	// addr may fall inside the mapping immediately before the insertion
	// point, since indexOf finds the first mapping starting AT or after
	// addr.
	if i < len(v.mappings) && v.mappings[i].Range.Start == addr {
		return v.mappings[i], true
	}
	if i > 0 {
		m := v.mappings[i-1]
		if addr < m.Range.End {
			return m, true
		}
	}
	return nil, false
}

func overlaps(a, b paging.AddrRange) bool {
	return a.Start < b.End && b.Start < a.End
}

// Map installs a new mapping of r onto phys (starting at physIndex pages
// into it) with the given attributes. Returns EEXIST if r overlaps any
// existing mapping.
func (v *Virt) Map(r paging.AddrRange, p *phys.Phys, physIndex uint64, attr paging.Attr) error {
	if err := v.guard.Lock(context.Background()); err != nil {
		return err
	}
	defer v.guard.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	i := v.indexOf(r.Start)
	if i > 0 && overlaps(v.mappings[i-1].Range, r) {
		return kerrno.EEXIST
	}
	if i < len(v.mappings) && overlaps(v.mappings[i].Range, r) {
		return kerrno.EEXIST
	}

	m := &Mapping{Range: r, Phys: p, PhysIndex: physIndex, Attr: attr}
	v.mappings = append(v.mappings, nil)
	copy(v.mappings[i+1:], v.mappings[i:])
	v.mappings[i] = m
	return nil
}

// Unmap removes every mapping overlapping r and clears the corresponding
// page table entries, then shoots down the TLB on every other hart this
// Virt is loaded on.
func (v *Virt) Unmap(r paging.AddrRange) error {
	if err := v.guard.Lock(context.Background()); err != nil {
		return err
	}
	defer v.guard.Unlock()

	v.mu.Lock()
	var kept []*Mapping
	for _, m := range v.mappings {
		if !overlaps(m.Range, r) {
			kept = append(kept, m)
			continue
		}
		for va := m.Range.Start; va < m.Range.End; va += pageSize {
			if va >= r.Start && va < r.End {
				_ = v.Table.Unmap(va)
			}
		}
	}
	v.mappings = kept
	v.mu.Unlock()

	v.shootdown(r)
	return nil
}

// Protect narrows the attributes of every page table entry within r whose
// mapping allows it, then shoots down the TLB.
func (v *Virt) Protect(r paging.AddrRange, newAttr paging.Attr) error {
	if err := v.guard.Lock(context.Background()); err != nil {
		return err
	}
	defer v.guard.Unlock()

	v.mu.Lock()
	for _, m := range v.mappings {
		if !overlaps(m.Range, r) {
			continue
		}
		m.Attr = newAttr
		for va := m.Range.Start; va < m.Range.End; va += pageSize {
			if va < r.Start || va >= r.End {
				continue
			}
			if _, _, ok := v.Table.Lookup(va); ok {
				if err := v.Table.Protect(va, newAttr); err != nil {
					v.mu.Unlock()
					return err
				}
			}
		}
	}
	v.mu.Unlock()

	v.shootdown(r)
	return nil
}

// Commit materialises the page table entry covering addr: it looks up
// addr's Mapping, commits the corresponding Phys page, and installs a PTE
// with the mapping's attributes intersected with the requested access. A
// write access additionally forks the underlying Phys entry off any
// still-shared (CoW) frame before the PTE is installed, so a write fault
// on a freshly-forked page never leaves the writer pointed at a frame
// some other address space can still observe. Returns EFAULT if addr has
// no mapping or access exceeds the mapping's attributes.
func (v *Virt) Commit(addr uintptr, access paging.Attr) error {
	v.mu.RLock()
	m, ok := v.find(addr)
	v.mu.RUnlock()
	if !ok {
		return kerrno.EFAULT
	}
	if !access.Subset(m.Attr) {
		return kerrno.EFAULT
	}

	pageOff := uint64(addr-m.Range.Start) / pageSize
	physIdx := m.PhysIndex + pageOff
	frame, err := m.Phys.Commit(physIdx)
	if err != nil {
		return err
	}
	if access&paging.AttrWrite != 0 {
		// A write access forks a private frame off a still-shared (CoW)
		// entry; re-Commit picks up whatever frame Write just installed,
		// cheaply (the entry is already in the table).
		if err := m.Phys.Write(physIdx); err != nil {
			return err
		}
		frame, err = m.Phys.Commit(physIdx)
		if err != nil {
			return err
		}
	}

	// the PTE keeps the mapping's non-permission bits, but only those R/W/X
	// permissions the access itself asked for.
	const perms = paging.AttrRead | paging.AttrWrite | paging.AttrExec
	pteAttr := m.Attr&^perms | m.Attr&access&perms

	v.mu.Lock()
	err = v.Table.Map(addr, frame, pteAttr|paging.AttrValid)
	v.mu.Unlock()
	return err
}

// shootdown issues the local sfence-equivalent (a no-op in this
// simulation -- there is no real TLB to flush) and, for every other hart
// this Virt is loaded on, a remote fence covering r via the shared
// Fencer, per spec.md's TLB coherency rule.
func (v *Virt) shootdown(r paging.AddrRange) {
	if v.fencer == nil {
		return
	}
	self, _ := khart.Current()
	v.fencer.RemoteFence(context.Background(), &v.cpuMask, self, r, fenceTimeout)
}
