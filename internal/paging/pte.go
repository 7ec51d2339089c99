// Package paging implements an Sv39-shaped three-level page table over
// frames obtained from kalloc, plus TLB shootdown fan-out grounded on
// longpoll/channel.go's bounded, context-timed multi-value receive (used
// here in the inverted direction: fan a fence request out to N harts and
// collect acks instead of collecting N values from one producer).
package paging

import (
	"github.com/joeycumines/go-rvkernel/internal/kalloc"
)

// Attr is a PTE permission/attribute bitset, modeled after Sv39's R/W/X/U
// bits plus a kernel-only "valid" bit.
type Attr uint8

const (
	AttrRead Attr = 1 << iota
	AttrWrite
	AttrExec
	AttrUser
	AttrValid
)

// Subset reports whether a is a subset of other, the relation the spec's
// testable properties require ("PTE.attr ⊆ M.attr").
func (a Attr) Subset(other Attr) bool {
	return a&^other == 0
}

const (
	entriesPerLevel = 512
	levels          = 3 // Sv39: VPN[2], VPN[1], VPN[0]
	pageShift       = 12
	vpnBits         = 9
)

// pte is one page-table entry: the backing frame index plus its attributes.
// A zero pte (Attr == 0) is unmapped.
type pte struct {
	frame kalloc.FrameIndex
	attr  Attr
	// next is non-nil only for a non-leaf entry at levels 2 and 1, pointing
	// at the next-level table. Leaf entries (level 0, or a superpage leaf at
	// a higher level) leave it nil.
	next *table
}

type table struct {
	entries [entriesPerLevel]pte
}

// vpn extracts the three 9-bit virtual page numbers from a virtual address,
// matching Sv39's VPN[2]/VPN[1]/VPN[0] split.
func vpn(va uintptr) [levels]uint {
	var out [levels]uint
	shifted := va >> pageShift
	for i := 0; i < levels; i++ {
		out[i] = uint(shifted & (entriesPerLevel - 1))
		shifted >>= vpnBits
	}
	return out
}
