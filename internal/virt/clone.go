package virt

import (
	"github.com/joeycumines/go-rvkernel/internal/kalloc"
	"github.com/joeycumines/go-rvkernel/internal/paging"
)

// Clone produces a new address space with the same mapping layout as v,
// CoW-sharing every mapping's backing Phys via phys.Clone. Per
// phys.Clone's "branch takes over the table" design, v's own Mappings
// keep the exact *phys.Phys pointers they had before -- only the new
// Virt's mappings point at the freshly returned clone halves -- so both
// address spaces observe identical frame contents until either writes,
// with no copying at fork time.
//
// The new Virt's page table starts empty; every page is re-resolved via
// the ordinary page-fault -> Commit path the first time either address
// space touches it, exactly as a freshly-Mapped region would be.
func (v *Virt) Clone(alloc *kalloc.FrameAllocator, fencer *paging.Fencer) (*Virt, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	nv, err := New(alloc, fencer)
	if err != nil {
		return nil, err
	}

	nv.mappings = make([]*Mapping, len(v.mappings))
	for i, m := range v.mappings {
		nv.mappings[i] = &Mapping{
			Range:     m.Range,
			Phys:      m.Phys.Clone(),
			PhysIndex: m.PhysIndex,
			Attr:      m.Attr,
		}
	}
	return nv, nil
}
