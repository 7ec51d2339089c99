package trap

// UserProgram is the simulated user-mode side of a task: given the
// TrapFrame as it stood at the moment control last returned to user code,
// it runs until the next trap condition and reports what fired. Exactly
// one UserProgram drives one Rendezvous's user side; tests substitute a
// scripted UserProgram to drive specific scause sequences deterministically.
type UserProgram interface {
	// Run executes simulated user code starting from tf's register state
	// until a trap condition occurs, mutates tf to reflect the trapped
	// state (a0..a7, sepc, stval, scause), and returns.
	Run(tf *TrapFrame)
}

// FastFunc is the pre-switch hook checked before a full rendezvous
// exchange, mirroring eventloop's fast-path dispatch
// (fastPathEnabled/runFastPath) that bypasses full task-resumption
// machinery for cheap, synchronous work. Returning true means the fast
// path fully handled the trap and the caller should stay in
// yield_to_user's "user mode" rather than waking the task.
type FastFunc func(tf *TrapFrame) (handled bool)

// request/response carry one yield_to_user <-> UserEntry exchange. Both
// channels are unbuffered, which is what forces the caller and the
// simulated user side into lockstep -- one side is always parked waiting
// on the other, same as a real register-bank handoff never leaves both
// "halves" runnable simultaneously.
type request struct {
	tf *TrapFrame
}

type response struct {
	tf *TrapFrame
}

// Rendezvous is the per-task channel pair a task future's YieldToUser and
// the task's UserEntry loop communicate across. It is owned by exactly one
// task; sharing one across tasks is a programming error.
type Rendezvous struct {
	toUser   chan request
	fromUser chan response
	fast     FastFunc
}

// NewRendezvous creates a Rendezvous. fast may be nil (no fast path).
func NewRendezvous(fast FastFunc) *Rendezvous {
	return &Rendezvous{
		toUser:   make(chan request),
		fromUser: make(chan response),
		fast:     fast,
	}
}

// YieldToUser hands tf to the user side and blocks until the user side
// traps back, at which point tf has been updated in place with the
// trapped register state and Scause. The caller's own stack/registers
// (everything not inside tf) are untouched across the call -- the Go
// runtime's own goroutine-switch already gives this for free, which is
// the property the spec's hand-written "exact duals, no stack consumed"
// assembly achieves by construction in Go.
func (r *Rendezvous) YieldToUser(tf *TrapFrame) {
	for {
		r.toUser <- request{tf: tf}
		resp := <-r.fromUser
		if r.fast != nil && r.fast(resp.tf) {
			// fast path fully serviced the trap; resume user mode without
			// waking the task -- loop back into another handoff instead
			// of returning to the caller.
			continue
		}
		*tf = *resp.tf
		return
	}
}

// UserEntry runs prog against the register state handed over by the next
// YieldToUser call, then reports the trapped frame back. It blocks until a
// handoff arrives and loops for the Rendezvous's lifetime; callers run it
// in its own goroutine per task.
func (r *Rendezvous) UserEntry(prog UserProgram) {
	for req := range r.toUser {
		prog.Run(req.tf)
		r.fromUser <- response{tf: req.tf}
	}
}

// Close shuts down the Rendezvous's user-entry loop by closing its
// request channel; UserEntry's range loop then returns. Call only after
// the owning task future has returned.
func (r *Rendezvous) Close() {
	close(r.toUser)
}
