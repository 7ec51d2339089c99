package task

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-rvkernel/internal/trap"
	"github.com/joeycumines/go-rvkernel/internal/vfs"
	"github.com/joeycumines/go-rvkernel/internal/virt"
)

// State is the local half of a task record: everything touched only by
// the task's own goroutine plus the handful of fields the signal/exit
// machinery needs to reach in from outside, per spec.md §3's TaskState:
// "owning reference to Task, signal mask, brk, CPU time counters, pinned
// shared Virt, signal-action table (shared), file table (shared),
// optional TID-clear user pointer, exit-signal". Unlike Info, State is
// never fanned out to more than one goroutine at a time -- the mutex
// below guards only the handful of fields a signal delivery or a ptrace-
// style peek might touch concurrently with the owning goroutine.
type State struct {
	Info *Info

	Rendezvous *trap.Rendezvous
	Frame      trap.TrapFrame

	Space   *virt.Virt   // pinned, shared across threads of one process
	Actions *Actions     // shared across threads of one process
	Files   *vfs.FileTable // shared across threads of one process

	mu        sync.Mutex
	mask      map[Signal]bool
	brk       uint64
	tidClear  uint64
	hasTid    bool
	ExitSignal Signal

	userTimeNanos   int64 // atomic
	kernelTimeNanos int64 // atomic
}

// NewState creates a task's local state for a fresh Info record.
func NewState(info *Info, rendezvous *trap.Rendezvous, space *virt.Virt, actions *Actions, files *vfs.FileTable) *State {
	return &State{
		Info:       info,
		Rendezvous: rendezvous,
		Space:      space,
		Actions:    actions,
		Files:      files,
		mask:       map[Signal]bool{},
	}
}

// Brk returns the current program break.
func (s *State) Brk() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brk
}

// SetBrk updates the program break (the caller -- sys_brk's handler --
// is responsible for actually growing/shrinking the backing Virt
// mapping before calling this).
func (s *State) SetBrk(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brk = v
}

// SetTidClear records the user address to zero at exit (the
// set_tid_address/CLONE_CHILD_CLEARTID mechanism); no futex wake is
// issued on it. A zero address disables it.
func (s *State) SetTidClear(addr uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tidClear = addr
	s.hasTid = addr != 0
}

// TidClear returns the recorded clear address, if any.
func (s *State) TidClear() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tidClear, s.hasTid
}

// Block adds sig to the blocked-signal mask.
func (s *State) Block(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mask[sig] = true
}

// Unblock removes sig from the blocked-signal mask.
func (s *State) Unblock(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mask, sig)
}

// Blocked reports whether sig is currently masked.
func (s *State) Blocked(sig Signal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mask[sig]
}

// AddUserTime accounts d nanoseconds of user-mode execution (the time
// spent inside the last YieldToUser call).
func (s *State) AddUserTime(d int64) { atomic.AddInt64(&s.userTimeNanos, d) }

// AddKernelTime accounts d nanoseconds of kernel-mode execution.
func (s *State) AddKernelTime(d int64) { atomic.AddInt64(&s.kernelTimeNanos, d) }

// CPUTimes returns the accumulated (user, kernel) nanosecond counters.
func (s *State) CPUTimes() (userNanos, kernelNanos int64) {
	return atomic.LoadInt64(&s.userTimeNanos), atomic.LoadInt64(&s.kernelTimeNanos)
}
