// Package syscallreg implements the typed syscall dispatch table spec.md
// §4.6 describes: a registry keyed by syscall number, where each entry is
// a closure taking the caller's task state and trap frame and returning
// the same ControlFlow-shaped Outcome the kernel's main task loop expects.
//
// Grounded on inprocgrpc/handler.go's handlerMap/serviceEntry
// registration-and-lookup shape (a mutex-guarded map plus a panic on
// double registration), with Go generics replacing handlerMap's
// reflect-based "does impl implement HandlerType" check: Registry is
// parameterised over the task-state type S, so a handler's signature is
// enforced at compile time instead of at registration time.
package syscallreg

import (
	"fmt"
	"sync"

	"github.com/joeycumines/go-rvkernel/internal/kerrno"
	"github.com/joeycumines/go-rvkernel/internal/trap"
)

// Outcome is the Go rendering of spec.md's
// ControlFlow<(exit_code, Option<Sig>), Option<SigInfo>>: either the task
// keeps running (optionally with a signal now pending), or it's exiting
// with a code and optional signal.
type Outcome struct {
	Exit     bool
	ExitCode int32
	Sig      uint32
	HasSig   bool
}

// Handler is one syscall's typed implementation: it may read and mutate
// both the caller's task state and its trap frame (to set a return value,
// for instance).
type Handler[S any] func(state S, tf *trap.TrapFrame) Outcome

// Registry is a syscall-number-keyed dispatch table for task-state type S.
type Registry[S any] struct {
	mu       sync.RWMutex
	handlers map[uint64]Handler[S]
}

// New creates an empty Registry.
func New[S any]() *Registry[S] {
	return &Registry[S]{handlers: map[uint64]Handler[S]{}}
}

// Register installs h under syscall number nr. Panics if nr is already
// registered, matching handlerMap.registerService's double-registration
// panic -- a syscall table is assembled once at boot, and a collision
// there is a programmer error, not a runtime condition to recover from.
func (r *Registry[S]) Register(nr uint64, h Handler[S]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[nr]; ok {
		panic(fmt.Sprintf("syscallreg: syscall %d already registered", nr))
	}
	r.handlers[nr] = h
}

// Lookup returns the handler registered for nr, and whether one exists.
func (r *Registry[S]) Lookup(nr uint64) (Handler[S], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[nr]
	return h, ok
}

// Dispatch looks up and invokes the handler for nr, returning ENOSYS if
// none is registered -- the ABI's standard "no such syscall" response,
// rather than a fatal signal.
func (r *Registry[S]) Dispatch(nr uint64, state S, tf *trap.TrapFrame) (Outcome, error) {
	h, ok := r.Lookup(nr)
	if !ok {
		return Outcome{}, kerrno.ENOSYS
	}
	return h(state, tf), nil
}

// Len reports the number of registered syscalls.
func (r *Registry[S]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
