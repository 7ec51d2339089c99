package phys

import (
	"sync"

	"github.com/joeycumines/go-rvkernel/internal/kalloc"
	"github.com/joeycumines/go-rvkernel/internal/kerrno"
)

// flushJob is one dirty-page write-back descriptor.
type flushJob struct {
	idx   uint64
	frame kalloc.FrameIndex
}

// flusher is a background write-back worker for one Phys, grounded on
// microbatch.Batcher's single-goroutine batch-processing loop: callers
// submit jobs and get back a completion signal, while one goroutine
// drains and processes them serially against the backend, so concurrent
// Flush callers never race each other's writes to the same backend.
//
// Unlike microbatch.Batcher (which batches many Submit calls arriving
// over time, governed by MaxSize/FlushInterval), Flush always hands this
// flusher one full job slice at a time -- the batching already happened
// at the Phys level when it collected its entire dirty set -- so there is
// no time-based coalescing window to configure here.
type flusher struct {
	phys *Phys
	jobs chan flushRequest
	done chan struct{}
	once sync.Once
}

type flushRequest struct {
	jobs []flushJob
	ack  chan struct{}
}

func newFlusher(p *Phys) *flusher {
	f := &flusher{phys: p, jobs: make(chan flushRequest), done: make(chan struct{})}
	go f.run()
	return f
}

func (f *flusher) run() {
	for req := range f.jobs {
		for _, j := range req.jobs {
			f.writeBack(j)
		}
		close(req.ack)
	}
	close(f.done)
}

func (f *flusher) writeBack(j flushJob) {
	if f.phys.backend == nil {
		return
	}
	if _, err := f.phys.backend.WriteAt(f.phys.alloc.Frame(j.frame), int64(j.idx)*frameBytes); err != nil {
		// a failed write marks the entry dirty again, so the next Flush
		// retries it and the data isn't silently lost. The failure is not
		// reported to the Flush caller, and the Phys is not marked as
		// failed: later flushes proceed as usual.
		f.phys.mu.Lock()
		if e, ok := f.phys.table[j.idx]; ok {
			e.dirty = true
		}
		f.phys.mu.Unlock()
		_ = kerrno.EIO
	}
}

// submit hands jobs to the flusher's single worker goroutine and returns
// a channel that closes once they've all been processed.
func (f *flusher) submit(jobs []flushJob) <-chan struct{} {
	ack := make(chan struct{})
	f.jobs <- flushRequest{jobs: jobs, ack: ack}
	return ack
}

// stop shuts the flusher down. Call only after every in-flight submit's
// ack channel has closed.
func (f *flusher) stop() {
	f.once.Do(func() { close(f.jobs) })
}
