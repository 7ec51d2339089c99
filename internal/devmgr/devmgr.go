// Package devmgr implements the device-tree probing pass spec.md §6
// describes: a typed, compatible-string-keyed init-handler registry, and
// a multi-pass driver over a caller-supplied node list that re-probes
// until a pass initialises nothing new (resolving interrupt-parent/child
// ordering without the caller declaring an explicit dependency graph).
//
// FDT parsing itself is out of scope (spec.md §1): Node below is the
// already-decoded shape a real flattened-device-tree parser would hand
// off, not a parser.
package devmgr

import (
	"fmt"
	"sync"

	"github.com/joeycumines/go-rvkernel/internal/klog"
)

// Node is one already-parsed device-tree node.
type Node struct {
	Name       string
	Compatible string
	Props      map[string]string
	Children   []*Node
}

// Handler probes one node, returning true if it successfully initialised
// the device the node describes. Returning false (with no error) means
// "not ready yet" -- e.g. its interrupt parent hasn't probed this pass --
// and the node is retried on the next pass.
type Handler func(n *Node) (bool, error)

// Registry is a compatible-string-keyed init-handler table -- the second,
// independent instantiation of the registration/lookup shape
// internal/syscallreg also implements, over an unrelated handler
// signature (a device node rather than a syscall's typed arguments), so
// the two are kept as separate generic instantiations rather than a
// shared registry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register installs h for the given compatible string. Panics on a
// duplicate registration, matching syscallreg.Registry.Register -- the
// driver table is assembled once at boot.
func (r *Registry) Register(compatible string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[compatible]; ok {
		panic(fmt.Sprintf("devmgr: compatible %q already registered", compatible))
	}
	r.handlers[compatible] = h
}

// Lookup returns the handler registered for compatible, if any.
func (r *Registry) Lookup(compatible string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[compatible]
	return h, ok
}

// flatten walks the tree rooted at nodes (depth-first, each node before
// its children, but the probing loop below doesn't depend on the order)
// and returns every node in the forest.
func flatten(nodes []*Node) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(n *Node) {
		out = append(out, n)
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}

// Probe runs reg's handlers over every node in the forest rooted at
// nodes, repeating passes until one initialises nothing new. It returns
// the nodes that were never successfully initialised (no matching
// handler, or every pass's attempt returned false). A handler error stops
// probing at once: Probe returns that error with a nil unresolved list.
func Probe(log *klog.Logger, reg *Registry, nodes []*Node) (initialized int, unresolved []*Node, err error) {
	pending := flatten(nodes)

	for {
		var progressed []*Node
		var stillPending []*Node
		progress := false

		for _, n := range pending {
			h, ok := reg.Lookup(n.Compatible)
			if !ok {
				stillPending = append(stillPending, n)
				continue
			}
			ok2, probeErr := h(n)
			if probeErr != nil {
				return initialized, nil, probeErr
			}
			if ok2 {
				progressed = append(progressed, n)
				progress = true
				if log != nil {
					log.Info("device probed", klog.Str("compatible", n.Compatible), klog.Str("name", n.Name))
				}
				continue
			}
			stillPending = append(stillPending, n)
		}

		initialized += len(progressed)
		pending = stillPending
		if !progress || len(pending) == 0 {
			break
		}
	}

	return initialized, pending, nil
}
