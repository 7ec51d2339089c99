package virt

import (
	"crypto/rand"
	"encoding/binary"
	"sort"

	"github.com/joeycumines/go-rvkernel/internal/kerrno"
	"github.com/joeycumines/go-rvkernel/internal/paging"
)

// PickGap chooses a random sufficiently-large gap for a size-byte mapping
// within region, avoiding every existing mapping, and returns its base
// address page-aligned within region. ASLR gap selection is a security
// property (making mapping addresses unpredictable to an attacker), not a
// performance one, so it uses crypto/rand rather than math/rand.
func (v *Virt) PickGap(region paging.AddrRange, size uint) (uintptr, error) {
	v.mu.RLock()
	gaps := v.freeGaps(region, uintptr(size))
	v.mu.RUnlock()

	// slots returns g's first page-aligned base and how many page-aligned
	// bases in g leave room for size bytes.
	slots := func(g paging.AddrRange) (uintptr, uint64) {
		base := (g.Start + pageSize - 1) &^ (pageSize - 1)
		if base > g.End || g.End-base < uintptr(size) {
			return base, 0
		}
		return base, uint64((g.End-base-uintptr(size))/pageSize) + 1
	}

	var total uint64
	for _, g := range gaps {
		_, n := slots(g)
		total += n
	}
	if total == 0 {
		return 0, kerrno.ENOMEM
	}

	pick, err := randUint64n(total)
	if err != nil {
		return 0, err
	}
	for _, g := range gaps {
		base, n := slots(g)
		if pick < n {
			return base + uintptr(pick)*pageSize, nil
		}
		pick -= n
	}
	// unreachable given the total above, but keep a defined fallback.
	return gaps[len(gaps)-1].Start, nil
}

// freeGaps returns every free sub-range of region at least minSize bytes
// wide, given the current (sorted) mapping list. Caller must hold v.mu.
func (v *Virt) freeGaps(region paging.AddrRange, minSize uintptr) []paging.AddrRange {
	i := sort.Search(len(v.mappings), func(i int) bool {
		return v.mappings[i].Range.End > region.Start
	})

	var gaps []paging.AddrRange
	cursor := region.Start
	for ; i < len(v.mappings); i++ {
		m := v.mappings[i]
		if m.Range.Start >= region.End {
			break
		}
		start := m.Range.Start
		if start > cursor {
			if start-cursor >= minSize {
				gaps = append(gaps, paging.AddrRange{Start: cursor, End: start})
			}
		}
		if m.Range.End > cursor {
			cursor = m.Range.End
		}
	}
	if cursor < region.End && region.End-cursor >= minSize {
		gaps = append(gaps, paging.AddrRange{Start: cursor, End: region.End})
	}
	return gaps
}

// randUint64n returns a cryptographically random value in [0, n) using
// rejection sampling over crypto/rand, the same unbiased-modulo technique
// crypto/rand.Int itself uses, specialised to uint64 to avoid a big.Int
// allocation per call.
func randUint64n(n uint64) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	// largest multiple of n that fits in 64 bits; reject draws above it to
	// avoid biasing toward small remainders.
	limit := ^uint64(0) - (^uint64(0) % n)
	for {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint64(buf[:])
		if v <= limit {
			return v % n, nil
		}
	}
}
