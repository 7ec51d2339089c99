package paging

import (
	"github.com/joeycumines/go-rvkernel/internal/kalloc"
	"github.com/joeycumines/go-rvkernel/internal/kerrno"
)

// Table is the root of a three-level Sv39-shaped page table. Each table
// node also reserves one frame from alloc purely for frame accounting --
// Go has no way to place the node's backing array at that frame's physical
// address, so the table's Go-heap representation and its frame-table
// bookkeeping are deliberately kept separate (see DESIGN.md).
type Table struct {
	root  *table
	frame kalloc.FrameIndex
	alloc *kalloc.FrameAllocator
}

// NewTable allocates a root page-table frame from alloc.
func NewTable(alloc *kalloc.FrameAllocator) (*Table, error) {
	f, err := alloc.Alloc()
	if err != nil {
		return nil, err
	}
	return &Table{root: &table{}, frame: f, alloc: alloc}, nil
}

// walk descends to the level-0 entry for va, allocating intermediate
// tables (each backed by a fresh frame) when create is true.
func (t *Table) walk(va uintptr, create bool) (*pte, error) {
	idx := vpn(va)
	cur := t.root
	for level := levels - 1; level > 0; level-- {
		e := &cur.entries[idx[level]]
		if e.next == nil {
			if !create {
				return nil, nil
			}
			f, err := t.alloc.Alloc()
			if err != nil {
				return nil, err
			}
			e.next = &table{}
			e.frame = f
			e.attr = AttrValid
		}
		cur = e.next
	}
	return &cur.entries[idx[0]], nil
}

// Map installs a leaf PTE for va pointing at frame with the given
// attributes. AttrValid is always added to attr.
func (t *Table) Map(va uintptr, frame kalloc.FrameIndex, attr Attr) error {
	e, err := t.walk(va, true)
	if err != nil {
		return err
	}
	e.frame = frame
	e.attr = attr | AttrValid
	return nil
}

// Unmap clears the leaf PTE for va. Unmapping an address with no mapping
// is a no-op, matching the spec's lazy-commit model where a hole is
// simply "not yet mapped".
func (t *Table) Unmap(va uintptr) error {
	e, err := t.walk(va, false)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	*e = pte{}
	return nil
}

// Protect narrows (or changes) the attributes of an existing mapping.
// Protecting an unmapped address returns EFAULT.
func (t *Table) Protect(va uintptr, attr Attr) error {
	e, err := t.walk(va, false)
	if err != nil {
		return err
	}
	if e == nil || e.attr&AttrValid == 0 {
		return kerrno.EFAULT
	}
	e.attr = attr | AttrValid
	return nil
}

// Lookup returns the frame and attributes mapped at va, and whether a
// mapping exists at all.
func (t *Table) Lookup(va uintptr) (kalloc.FrameIndex, Attr, bool) {
	e, err := t.walk(va, false)
	if err != nil || e == nil || e.attr&AttrValid == 0 {
		return 0, 0, false
	}
	return e.frame, e.attr, true
}
