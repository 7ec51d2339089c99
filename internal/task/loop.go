package task

import (
	"time"

	"github.com/joeycumines/go-rvkernel/internal/kerrno"
	"github.com/joeycumines/go-rvkernel/internal/paging"
	"github.com/joeycumines/go-rvkernel/internal/syscallreg"
	"github.com/joeycumines/go-rvkernel/internal/trap"
)

// Task is one schedulable unit: the goroutine-backed "stackful fiber"
// running a task's main loop (spec.md §4.5's maybe_deliver_signal ->
// yield_to_user -> handle(scause) cycle), exposed to the executor as a
// exec.Runnable.
//
// The executor this kernel builds (internal/exec) is a non-blocking,
// poll-based work-stealing scheduler, but a task's real body blocks on
// Rendezvous.YieldToUser's unbuffered channel handoff -- there is no way
// to run one iteration of that exchange from inside a non-blocking
// Poll() call. Rather than rebuild YieldToUser as a state machine (which
// would defeat the point of the rendezvous construction: per spec.md
// §2.3's "exact duals, no stack consumed", the whole appeal is that a
// task's control flow reads like ordinary blocking code), each Task
// spawns its own goroutine on first Poll() -- a stackful fiber, exactly
// what spec.md §9 sanctions ("stackful fibers sized to exactly the
// per-task needs"). Poll() itself degrades to a non-blocking check of a
// completion channel; the executor's work-stealing deque still governs
// which hart a task is considered to be "on" (for address-space loading
// and wake bookkeeping), it just no longer multiplexes the task's live
// computation the way a cooperative, truly-pollable future would. This
// divergence is deliberate and spec-permitted, not an oversight.
type Task struct {
	ID       ID
	State    *State
	Registry *syscallreg.Registry[*State]
	Program  trap.UserProgram

	started bool
	done    chan struct{}
}

// NewTask creates a Task ready to be scheduled. program drives the
// task's simulated user-mode side; registry resolves ecall dispatch.
func NewTask(id ID, state *State, registry *syscallreg.Registry[*State], program trap.UserProgram) *Task {
	return &Task{
		ID:       id,
		State:    state,
		Registry: registry,
		Program:  program,
		done:     make(chan struct{}),
	}
}

// Poll satisfies exec.Runnable. The first call spawns the task's fiber
// goroutine and its paired user-entry goroutine; every call (including
// the first) is a non-blocking check of whether the fiber has finished.
func (t *Task) Poll() (done bool) {
	if !t.started {
		t.started = true
		go t.State.Rendezvous.UserEntry(t.Program)
		go t.run()
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// run is the task's main loop body, executed on its own goroutine.
func (t *Task) run() {
	defer close(t.done)
	defer t.State.Rendezvous.Close()

	for {
		if sig, info, ok := t.State.Info.TakePending(); ok && !t.State.Blocked(sig) {
			if t.deliverSignal(sig, info) {
				return
			}
		}

		userStart := time.Now()
		t.State.Rendezvous.YieldToUser(&t.State.Frame)
		t.State.AddUserTime(time.Since(userStart).Nanoseconds())

		kernelStart := time.Now()
		exited := t.handle(&t.State.Frame)
		t.State.AddKernelTime(time.Since(kernelStart).Nanoseconds())
		if exited {
			return
		}
	}
}

// handle dispatches on the trapped frame's Scause, per spec.md §4.5's
// handle(scause, stval, sepc) match. Returns true once the task has
// exited and its goroutine should stop.
func (t *Task) handle(tf *trap.TrapFrame) (exited bool) {
	switch tf.Scause {
	case trap.CauseUserEcall:
		return t.handleEcall(tf)

	case trap.CauseLoadPageFault, trap.CauseStorePageFault:
		access := paging.AttrRead
		if tf.Scause == trap.CauseStorePageFault {
			access = paging.AttrWrite
		}
		if err := t.State.Space.Commit(uintptr(tf.Stval), access); err != nil {
			t.exit(-1, SIGSEGV, true)
			return true
		}
		return false

	case trap.CauseTimerInterrupt, trap.CauseExternalInterrupt:
		// Nothing task-local to do: the executor's own wake/requeue
		// bookkeeping already handles preemption and IO readiness.
		return false

	default:
		t.exit(-1, SIGSEGV, true)
		return true
	}
}

func (t *Task) handleEcall(tf *trap.TrapFrame) (exited bool) {
	nr := tf.A[7]
	outcome, err := t.Registry.Dispatch(nr, t.State, tf)
	if err != nil {
		if errno, ok := err.(kerrno.Errno); ok {
			tf.SetA0(uint64(errno.Negate()))
		}
		return false
	}
	if outcome.Exit {
		t.exit(outcome.ExitCode, Signal(outcome.Sig), outcome.HasSig)
		return true
	}
	if outcome.HasSig {
		t.State.Info.Raise(Signal(outcome.Sig), SigInfo{Signal: Signal(outcome.Sig)})
	}
	return false
}

// deliverSignal runs sig's disposition (or its default action if none is
// registered). Returns true if the task should terminate as a result.
func (t *Task) deliverSignal(sig Signal, info SigInfo) (exited bool) {
	if h, ok := t.State.Actions.Get(sig); ok {
		h(t.State, info)
		return false
	}
	if terminatesByDefault[sig] {
		t.exit(128+int32(sig), sig, true)
		return true
	}
	return false
}

// exit records the task's termination: it clears the CLONE_CHILD_CLEARTID
// address if one was registered, then broadcasts EventExited to every
// Wait4 subscriber (the parent, ptrace-style observers).
func (t *Task) exit(code int32, sig Signal, hasSig bool) {
	if addr, ok := t.State.TidClear(); ok {
		_ = trap.CheckedZero(t.State.Space, addr, 4)
	}
	t.State.Info.Events.Publish(Event{Kind: EventExited, ExitCode: code, Sig: sig, HasSig: hasSig})
}
