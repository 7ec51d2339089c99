package vfs

import (
	"sync"

	"github.com/joeycumines/go-rvkernel/internal/kerrno"
)

// OpenFile is one open file description: a Node plus its current byte
// offset. Linux semantics share one OpenFile across every fd that
// descends from the same open(2) call (including across fork), which is
// exactly what FileTable.Clone preserves below.
type OpenFile struct {
	mu     sync.Mutex
	Node   *Node
	offset int64
}

// ReadAt reads at the current offset and advances it.
func (f *OpenFile) ReadAt(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Node.IO == nil {
		return 0, kerrno.EINVAL
	}
	n, err := f.Node.IO.ReadAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// WriteAt writes at the current offset and advances it.
func (f *OpenFile) WriteAt(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Node.IO == nil {
		return 0, kerrno.EINVAL
	}
	n, err := f.Node.IO.WriteAt(p, f.offset)
	f.offset += int64(n)
	return n, err
}

// Offset returns the current byte offset.
func (f *OpenFile) Offset() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// FileTable is a task's fd -> OpenFile map, the "file table" of
// spec.md's TaskState, shared across threads in a process and duplicated
// (entry-for-entry, sharing each OpenFile) across a fork per flags.
type FileTable struct {
	mu    sync.Mutex
	files map[int32]*OpenFile
	next  int32
}

// NewFileTable creates an empty file table.
func NewFileTable() *FileTable {
	return &FileTable{files: map[int32]*OpenFile{}}
}

// Open installs a fresh OpenFile for n and returns its new fd.
func (t *FileTable) Open(n *Node) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.files[fd] = &OpenFile{Node: n}
	return fd
}

// Get returns the OpenFile for fd, if open.
func (t *FileTable) Get(fd int32) (*OpenFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.files[fd]
	return f, ok
}

// Close removes fd from the table. Returns EBADF if not open.
func (t *FileTable) Close(fd int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.files[fd]; !ok {
		return kerrno.EBADF
	}
	delete(t.files, fd)
	return nil
}

// Clone duplicates the fd -> OpenFile mapping into a new, independent
// FileTable whose entries still point at the SAME OpenFile instances --
// matching fork's real-Unix fd semantics, where a child's inherited fds
// share the parent's file offset.
func (t *FileTable) Clone() *FileTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := &FileTable{files: make(map[int32]*OpenFile, len(t.files)), next: t.next}
	for fd, f := range t.files {
		out.files[fd] = f
	}
	return out
}

// Len reports the number of open fds.
func (t *FileTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}
