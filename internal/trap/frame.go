// Package trap implements the kernel/user transition: a TrapFrame register
// bank, a matched YieldToUser/UserEntry rendezvous pair standing in for the
// spec's symmetric stackful register-switch, and a per-hart checked-access
// simulation for user pointers.
//
// The rendezvous is grounded on inprocgrpc's clientStreamAdapter: each of
// its blocking gRPC methods submits work to a non-blocking event loop and
// blocks the caller on an unbuffered channel until the loop produces a
// result -- exactly the shape of "the caller of yield_to_user observes the
// trap return as if a normal function call returned", just with the
// "event loop" on the other end replaced by simulated user-mode execution.
package trap

// TrapFrame holds 36 word-sized registers: 12 s-registers, 19
// t/a/ra/sp/gp/tp registers (t0..t6, a0..a7, ra, sp, gp, tp), one scratch
// slot, and the four trap CSRs. A task's TrapFrame is a field of its
// task.State, so it lives on the heap with that State, and the rendezvous
// passes a pointer to it to the user side on every switch.
type TrapFrame struct {
	S       [12]uint64 // s0..s11
	T       [7]uint64  // t0..t6
	A       [8]uint64  // a0..a7
	RA, SP, GP, TP uint64
	Scratch uint64
	Sepc    uint64
	Sstatus uint64
	Stval   uint64
	Scause  Cause
}

// Cause enumerates the trap reasons a UserEntry hand-off can report, one
// per scause reason this kernel handles. The numeric values are this
// package's own; they are not the hardware scause encoding.
type Cause uint64

const (
	CauseUserEcall Cause = iota
	CauseTimerInterrupt
	CauseExternalInterrupt
	CauseLoadPageFault
	CauseStorePageFault
	CauseIllegalInstruction
)

// A0 returns the return-value register after a trap, and SetA0 sets it --
// the register UserCx.ret(v) places a syscall's return value into.
func (tf *TrapFrame) A0() uint64     { return tf.A[0] }
func (tf *TrapFrame) SetA0(v uint64) { tf.A[0] = v }
