package vfs

import (
	"context"
	"io"

	"github.com/joeycumines/go-rvkernel/internal/kasync"
)

// Pipe is the syscall write/read primitive spec.md §8 scenario 1
// describes ("shared Phys with no backend"): an unbuffered byte stream
// between exactly one writer and one reader, composed on top of
// kasync.MPSC rather than a literal Phys. A pipe has no address space of
// its own to commit pages into and no offsets to seek to -- it is a pure
// producer/consumer handoff -- so modelling it as chunks over an MPSC
// queue (rather than forcing it through Virt's page-fault-driven commit
// path, which exists to serve addressable mappings) gives the same
// observable write-then-read-then-EOF semantics the scenario checks with
// less machinery, not as a workaround for any gap in Phys/Virt.
type Pipe struct {
	q *kasync.MPSC[[]byte]
}

// NewPipe creates an empty pipe.
func NewPipe() *Pipe {
	return &Pipe{q: kasync.NewMPSC[[]byte](16)}
}

// WriteAt ignores off (a pipe has no addressable positions) and enqueues
// a copy of p as one chunk.
func (p *Pipe) WriteAt(b []byte, off int64) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	p.q.Send(cp)
	return len(b), nil
}

// ReadAt ignores off and blocks for the next chunk, returning io.EOF once
// the pipe is closed and drained.
func (p *Pipe) ReadAt(b []byte, off int64) (int, error) {
	chunk, ok, err := p.q.Recv(context.Background())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, io.EOF
	}
	n := copy(b, chunk)
	return n, nil
}

// Close marks the write end done; a reader observes io.EOF once every
// already-sent chunk has been drained.
func (p *Pipe) Close() {
	p.q.Close()
}
