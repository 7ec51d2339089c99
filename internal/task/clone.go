package task

import (
	"github.com/joeycumines/go-rvkernel/internal/kalloc"
	"github.com/joeycumines/go-rvkernel/internal/paging"
	"github.com/joeycumines/go-rvkernel/internal/trap"
	"github.com/joeycumines/go-rvkernel/internal/virt"
)

// CloneFlags selects what a new task shares with its parent, mirroring
// the handful of Linux clone(2) flags this kernel core's Non-goals leave
// in scope: CLONE_VM, CLONE_FILES and CLONE_SIGHAND. A plain fork(2) is
// Fork called with no flags set; a pthread-style clone sets all three.
type CloneFlags uint32

const (
	CloneVM CloneFlags = 1 << iota
	CloneFiles
	CloneSighand
)

// Fork creates a new task from parent: id is the new task's identity, and
// alloc/fencer are passed through to virt.Virt.Clone (a CoW address-space
// fork) when flags doesn't set CloneVM. The returned Task is not yet
// scheduled -- the caller hands it to an executor.
func Fork(parent *Task, id ID, flags CloneFlags, alloc *kalloc.FrameAllocator, fencer *paging.Fencer, program trap.UserProgram) (*Task, error) {
	info := NewInfo(id, parent.State.Info)

	space := parent.State.Space
	if flags&CloneVM == 0 {
		cloned, err := parent.State.Space.Clone(alloc, fencer)
		if err != nil {
			return nil, err
		}
		space = cloned
	}

	actions := parent.State.Actions
	if flags&CloneSighand == 0 {
		actions = parent.State.Actions.Clone()
	}

	files := parent.State.Files
	if flags&CloneFiles == 0 {
		files = parent.State.Files.Clone()
	}

	rendezvous := trap.NewRendezvous(nil)
	state := NewState(info, rendezvous, space, actions, files)
	state.Frame = parent.State.Frame // child resumes from the same trapped register state
	state.ExitSignal = parent.State.ExitSignal

	return NewTask(id, state, parent.Registry, program), nil
}

// Exec replaces the calling task's address space and signal actions with
// a freshly loaded program's, per execve(2): the task id, parent/child
// edges and open file table survive; everything else about the task's
// execution context resets to a fresh TrapFrame pointed at the new
// program's entry point and stack.
func Exec(t *Task, space *virt.Virt, entry, stackTop uint64) {
	t.State.Space = space
	t.State.Actions = NewActions()
	t.State.Frame = trap.TrapFrame{}
	t.State.Frame.Sepc = entry
	t.State.Frame.SP = stackTop
}
