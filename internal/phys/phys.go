package phys

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/joeycumines/go-rvkernel/internal/kalloc"
	"github.com/joeycumines/go-rvkernel/internal/kerrno"
)

// entry is one frame-table row: index -> {frame, shared flag, dirty flag,
// LRU position}, per spec.md's Phys data model. shared marks a frame this
// Phys has not privately copied yet -- it was handed down from a parent
// (directly, or via a branch node after Clone) and some sibling view may
// still be reading through the very same FrameIndex. The first Write
// against a shared entry must fork a private frame before mutating it;
// every later Write against that same (now private) entry is a plain
// dirty-flag flip.
type entry struct {
	frame  kalloc.FrameIndex
	shared bool
	dirty  bool
	lru    uint64 // monotonic touch counter; lower is older
}

// Phys is a cached view of a logical byte range. It is either:
//   - backend-backed (backend != nil, parent == nil): the tree's root for
//     one I/O object;
//   - parent-backed (parent != nil): a derived view, reached by Clone or by
//     construction over a shared root;
//   - a branch node (branch == true): see Clone.
type Phys struct {
	mu       sync.Mutex
	alloc    *kalloc.FrameAllocator
	backend  Io
	parent   *Phys
	branch   bool
	children []*Phys
	table    map[uint64]*entry
	touch    uint64
	sf       singleflight.Group
	flusher  *flusher
	closed   bool
}

// NewRoot creates a backend-backed Phys with no parent.
func NewRoot(alloc *kalloc.FrameAllocator, backend Io) *Phys {
	p := &Phys{
		alloc:   alloc,
		backend: backend,
		table:   map[uint64]*entry{},
	}
	p.flusher = newFlusher(p)
	return p
}

// NewAnonymous creates a Phys with no backend at all (e.g. a pipe buffer
// or anonymous mapping): commits on it always produce a fresh zero frame,
// never a backend read.
func NewAnonymous(alloc *kalloc.FrameAllocator) *Phys {
	return &Phys{alloc: alloc, table: map[uint64]*entry{}}
}

const frameBytes = kalloc.FrameSize

// Commit returns the frame backing offset index idx, materialising it on
// first access: a table hit returns immediately; a miss recursively
// queries the parent (or reads the backend), inserts into this Phys's own
// table, and marks the entry copy-on-write when this Phys shares ancestry.
// Concurrent Commit(idx) calls on the same Phys are deduplicated via
// singleflight, per spec.md §8's "at most one fetch from the backend"
// invariant.
func (p *Phys) Commit(idx uint64) (kalloc.FrameIndex, error) {
	p.mu.Lock()
	if e, ok := p.table[idx]; ok {
		p.touch++
		e.lru = p.touch
		frame := e.frame
		p.mu.Unlock()
		return frame, nil
	}
	p.mu.Unlock()

	key := fmt.Sprintf("%d", idx)
	v, err, _ := p.sf.Do(key, func() (any, error) {
		return p.fetch(idx)
	})
	if err != nil {
		return 0, err
	}
	return v.(kalloc.FrameIndex), nil
}

// fetch performs the actual miss path: parent lookup or backend read,
// frame allocation, and table insertion. Called with no lock held (the
// singleflight group serializes callers for the same idx; different idx
// values proceed in parallel, each still locking p.mu around the table
// mutation at the end).
func (p *Phys) fetch(idx uint64) (kalloc.FrameIndex, error) {
	compactChain(p)

	var frame kalloc.FrameIndex
	var shared bool

	switch {
	case p.parent != nil:
		// Inherit the parent's frame directly instead of allocating a
		// fresh one: that is what makes Clone cheap and what lets two
		// sibling views observe identical content immediately after a
		// fork. The frame is marked shared, so the first Write against
		// it (by either sibling) forks a private copy.
		parentFrame, err := p.parent.Commit(idx)
		if err != nil {
			return 0, err
		}
		frame = parentFrame
		shared = true
	case p.backend != nil:
		f, err := p.alloc.Alloc()
		if err != nil {
			return 0, err
		}
		if _, err := p.backend.ReadAt(p.alloc.Frame(f), int64(idx)*frameBytes); err != nil {
			p.alloc.Free(f)
			return 0, kerrno.EIO
		}
		frame = f
	default:
		f, err := p.alloc.Alloc()
		if err != nil {
			return 0, err
		}
		// a recycled frame still holds its previous owner's bytes.
		clear(p.alloc.Frame(f))
		frame = f
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.table[idx]; ok {
		// lost the race to another fetch that completed first via a
		// different singleflight key formatting; keep the existing entry.
		// Only the backend/anonymous paths actually allocated a frame of
		// their own (the parent path just borrowed the parent's), so only
		// those need freeing here.
		if !shared {
			p.alloc.Free(frame)
		}
		return e.frame, nil
	}
	p.touch++
	p.table[idx] = &entry{frame: frame, shared: shared, dirty: false, lru: p.touch}
	return frame, nil
}

// Write marks idx dirty, forking a privately-owned frame first if the
// committed entry is still shared with a parent or sibling view (the
// lazy half of copy-on-write: sharing happens eagerly on Commit, copying
// happens lazily on the first Write). Write implies the page must
// already have been Committed.
func (p *Phys) Write(idx uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.table[idx]
	if !ok {
		return kerrno.EFAULT
	}
	if e.shared {
		newFrame, err := p.alloc.Alloc()
		if err != nil {
			return err
		}
		copy(p.alloc.Frame(newFrame), p.alloc.Frame(e.frame))
		p.table[idx] = &entry{frame: newFrame, dirty: true, lru: p.touch}
		return nil
	}
	e.dirty = true
	return nil
}

// Flush walks the dirty set and hands each dirty entry to the background
// flusher, returning a channel that closes once every page handed off by
// this call has been acknowledged written back.
func (p *Phys) Flush() <-chan struct{} {
	compactChain(p)

	p.mu.Lock()
	var jobs []flushJob
	for idx, e := range p.table {
		if e.dirty {
			jobs = append(jobs, flushJob{idx: idx, frame: e.frame})
			e.dirty = false
		}
	}
	p.mu.Unlock()

	f := p.ancestorFlusher()
	if f == nil || len(jobs) == 0 {
		done := make(chan struct{})
		close(done)
		return done
	}
	return f.submit(jobs)
}

// ancestorFlusher finds the nearest flusher in p's own chain, walking up
// through branch nodes: Clone moves a backend-backed Phys's flusher onto
// the branch it creates, so a clone with no flusher of its own still
// needs to reach the one the branch took over.
func (p *Phys) ancestorFlusher() *flusher {
	for cur := p; cur != nil; cur = cur.parent {
		if cur.flusher != nil {
			return cur.flusher
		}
	}
	return nil
}

// Close awaits any pending write-backs and releases the flusher, per
// spec.md's "a backend-backed Phys is destroyed only after its pending
// write-backs complete" invariant. Close only stops the flusher p itself
// owns (p.flusher != nil): after Clone, a child view's writes flush
// through the branch's flusher instead, and closing one sibling must not
// tear that down out from under the other.
func (p *Phys) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	owned := p.flusher
	p.mu.Unlock()

	<-p.Flush()
	if owned != nil {
		owned.stop()
	}
}
