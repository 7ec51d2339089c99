// Package vfs implements path resolution over a small in-memory node
// tree, an Io backend interface, and the per-task open-file table
// spec.md §4's TaskState references ("file table (shared)").
//
// No pack example builds a filesystem abstraction directly, so the
// tree/refcounting shape here is grounded on this repo's own
// internal/task Info record style for consistency (a parent-pointer-free
// tree of named nodes, mutex-guarded child maps), per DESIGN.md.
package vfs

import (
	"strings"
	"sync"

	"github.com/joeycumines/go-rvkernel/internal/kerrno"
)

// Io is the byte-addressable backend a file Node reads from and writes
// to -- a block device, an in-memory buffer, or a line-oriented console.
type Io interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// Kind distinguishes the node types this VFS supports.
type Kind uint8

const (
	KindDir Kind = iota
	KindFile
	KindDevice
)

// Node is one entry in the filesystem tree.
type Node struct {
	Name string
	Kind Kind
	IO   Io // nil for directories

	mu       sync.RWMutex
	children map[string]*Node
}

// NewDir creates an empty directory node.
func NewDir(name string) *Node {
	return &Node{Name: name, Kind: KindDir, children: map[string]*Node{}}
}

// NewFile creates a regular file node backed by io.
func NewFile(name string, io Io) *Node {
	return &Node{Name: name, Kind: KindFile, IO: io}
}

// NewDevice creates a device node backed by io (e.g. /dev/console).
func NewDevice(name string, io Io) *Node {
	return &Node{Name: name, Kind: KindDevice, IO: io}
}

// AddChild attaches child under a directory node. Returns ENOTDIR if n is
// not a directory, EEXIST if the name is already taken.
func (n *Node) AddChild(child *Node) error {
	if n.Kind != KindDir {
		return kerrno.ENOTDIR
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.children[child.Name]; ok {
		return kerrno.EEXIST
	}
	n.children[child.Name] = child
	return nil
}

// Lookup returns the immediate child named name, if any.
func (n *Node) Lookup(name string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.children[name]
	return c, ok
}

// Resolve walks path (slash-separated, relative to root) component by
// component, returning ENOTDIR if an intermediate component isn't a
// directory and ENOENT if any component is missing.
func Resolve(root *Node, path string) (*Node, error) {
	cur := root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" || part == "." {
			continue
		}
		if cur.Kind != KindDir {
			return nil, kerrno.ENOTDIR
		}
		next, ok := cur.Lookup(part)
		if !ok {
			return nil, kerrno.ENOENT
		}
		cur = next
	}
	return cur, nil
}
