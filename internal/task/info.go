// Package task implements the split task-lifecycle model spec.md §4.5 and
// §3 describe: a plain "state" half threaded through the task's own
// goroutine (never shared, so it needs no synchronisation of its own),
// and a reference-counted "info" half shared with parents, children and
// the signal machinery.
//
// Grounded on spec.md §4.5 directly for the split itself and the main
// loop's shape (loop.go); on longpoll.Channel's context-bounded,
// collect-from-N-producers idiom for Wait4 (fan-in across every targeted
// child's exit broadcast, race the first one home); on internal/kasync's
// Broadcast for the per-task exit event channel the spec calls for.
package task

import (
	"context"
	"sync"

	"github.com/joeycumines/go-rvkernel/internal/kasync"
	"github.com/joeycumines/go-rvkernel/internal/kerrno"
)

// ID identifies a task (thread or process).
type ID uint64

// EventKind distinguishes the events broadcast on Info.Events. Exited is
// the only kind this kernel core defines; more would be added here as
// the signal/ptrace surface grows.
type EventKind uint8

const (
	EventExited EventKind = iota
)

// Event is one broadcast notification about a task's lifecycle.
type Event struct {
	Kind     EventKind
	ExitCode int32
	Sig      Signal
	HasSig   bool
}

// Info is the shared half of a task record: parent/child edges, the exit
// broadcast, and the pending-signal set. Every mutable field here is
// independently synchronised (a small mutex, or -- for Events -- a
// broadcast whose own internals are synchronised), per spec.md §4.5's
// "every mutable field is fine-grained".
type Info struct {
	ID ID

	mu       sync.Mutex
	Parent   *Info
	Children []*Info

	Events *kasync.Broadcast[Event]

	sigMu   sync.Mutex
	pending map[Signal]SigInfo
}

// NewInfo creates a task record with the given parent (nil for the init
// task) and links it into the parent's children list.
func NewInfo(id ID, parent *Info) *Info {
	i := &Info{
		ID:      id,
		Parent:  parent,
		Events:  kasync.NewBroadcast[Event](),
		pending: map[Signal]SigInfo{},
	}
	if parent != nil {
		parent.mu.Lock()
		parent.Children = append(parent.Children, i)
		parent.mu.Unlock()
	}
	return i
}

// removeChild detaches c from i's children list, called once c's task
// future has fully exited and been reaped (or reparented).
func (i *Info) removeChild(c *Info) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx, ch := range i.Children {
		if ch == c {
			i.Children = append(i.Children[:idx], i.Children[idx+1:]...)
			return
		}
	}
}

// ChildCount reports the number of live children.
func (i *Info) ChildCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.Children)
}

// Raise marks sig pending for delivery on this task's next
// maybe_deliver_signal check.
func (i *Info) Raise(sig Signal, info SigInfo) {
	i.sigMu.Lock()
	defer i.sigMu.Unlock()
	i.pending[sig] = info
}

// TakePending removes and returns one arbitrary pending signal, if any.
// Signal ORDER beyond "eventually delivered" is not part of this
// kernel's guarantees (spec.md's Non-goals exclude full POSIX
// conformance).
func (i *Info) TakePending() (Signal, SigInfo, bool) {
	i.sigMu.Lock()
	defer i.sigMu.Unlock()
	for sig, info := range i.pending {
		delete(i.pending, sig)
		return sig, info, true
	}
	return 0, SigInfo{}, false
}

// Wait4 waits for one of this task's children (pid, or any child when pid
// is zero) to exit, returning its id and exit Event. It fans a
// subscription out to every targeted child and races the first exit
// home, grounded on longpoll.Channel's bounded multi-producer collection
// loop (inverted here from "collect all" to "collect the first").
func (i *Info) Wait4(ctx context.Context, pid ID) (ID, Event, error) {
	i.mu.Lock()
	var targets []*Info
	if pid == 0 {
		targets = append(targets, i.Children...)
	} else {
		for _, c := range i.Children {
			if c.ID == pid {
				targets = []*Info{c}
				break
			}
		}
	}
	i.mu.Unlock()

	if len(targets) == 0 {
		return 0, Event{}, kerrno.ECHILD
	}

	type result struct {
		id ID
		ev Event
	}
	resCh := make(chan result, 1)
	subctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, c := range targets {
		wg.Add(1)
		go func(c *Info) {
			defer wg.Done()
			sub := c.Events.Subscribe()
			defer sub.Unsubscribe()
			for {
				ev, err := sub.Recv(subctx)
				if err != nil {
					return
				}
				if ev.Kind == EventExited {
					select {
					case resCh <- result{id: c.ID, ev: ev}:
						cancel()
					default:
					}
					return
				}
			}
		}(c)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	select {
	case r := <-resCh:
		return r.id, r.ev, nil
	case <-ctx.Done():
		<-done
		return 0, Event{}, ctx.Err()
	}
}
