package phys

// Clone produces a new Phys sharing p's current content without copying
// any frame eagerly. Per spec.md §4.3, this is NOT a direct parent/child
// link: a private branch node is allocated, and both p and the new clone
// become children of it, so that later destroying one clone's view never
// tears down the other's.
//
// The branch -- not either child -- takes over p's already-committed
// table, backend and flusher: that is what lets original and clone both
// resolve a pre-clone index to the exact same FrameIndex the first time
// each commits it after the fork (see fetch's parent path), which is the
// eager-share half of copy-on-write. Both children start with empty
// tables of their own; only a Write to a given index later forks that
// one entry into a private frame, via Write's shared-entry branch.
func (p *Phys) Clone() *Phys {
	p.mu.Lock()
	defer p.mu.Unlock()

	branch := &Phys{
		alloc:   p.alloc,
		branch:  true,
		backend: p.backend,
		parent:  p.parent,
		table:   p.table, // branch keeps the already-committed frames
		flusher: p.flusher,
	}

	clone := &Phys{
		alloc:  p.alloc,
		parent: branch,
		table:  map[uint64]*entry{},
	}

	// p becomes the branch's stand-in at its call site: every live
	// reference to *p now behaves as "original", reached through the
	// branch. Only the logical fields describing what p resolves through
	// are rewritten in place (so existing holders of *p automatically see
	// the rewritten tree) -- p's own mu and sf are left untouched, since
	// overwriting them out from under the lock/defer this method itself
	// holds would unlock a zeroed mutex and fatal the process.
	p.backend = nil
	p.parent = branch
	p.branch = false
	p.table = map[uint64]*entry{}
	p.touch = 0
	p.flusher = nil
	p.children = nil

	branch.children = []*Phys{p, clone}

	return clone
}

// Release detaches p from its parent branch node's children list, the
// step that (eventually) makes that branch collapsible by compactChain --
// grounded on spec.md §4.3's "branch nodes are private" design note: once
// only one child remains, the branch has stopped doing useful disambiguation
// work and the next compaction pass removes it.
func (p *Phys) Release() {
	if p.parent == nil || !p.parent.branch {
		return
	}
	b := p.parent
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.children {
		if c == p {
			b.children = append(b.children[:i], b.children[i+1:]...)
			break
		}
	}
}

// compactChain collapses a run of single-child branch nodes above p into
// one direct parent edge, walking up exactly as a caller resolving a deep
// inheritance chain would: each step either stops at a real (non-branch,
// or multi-child) ancestor, or splices past a redundant link. Commit and
// Flush call this before walking the parent chain, per spec.md §4.3's
// "commit/flush first compact linear chains of single-child branches".
func compactChain(p *Phys) {
	for p.parent != nil && p.parent.branch && len(p.parent.children) == 1 {
		grandparent := p.parent.parent
		p.parent = grandparent
	}
}
