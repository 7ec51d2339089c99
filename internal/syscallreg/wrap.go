package syscallreg

import "github.com/joeycumines/go-rvkernel/internal/trap"

// Word is the set of register-sized types a syscall argument or return
// value may be declared as; WrapN converts each to/from the raw uint64
// register value via toWord/fromWord.
type Word interface {
	~uint64 | ~int64 | ~uintptr | ~int32 | ~uint32
}

func toWord[T Word](v uint64) T   { return T(v) }
func fromWord[T Word](v T) uint64 { return uint64(v) }

// Wrap0 adapts a zero-argument handler into a uniform Handler[S], the
// generic analogue of spec.md §4.6's macro: fn declares its own typed
// UserCx<fn() -> R> signature, and the registry still stores one uniform
// closure shape.
func Wrap0[S any, R Word](fn func(state S) R) Handler[S] {
	return func(state S, tf *trap.TrapFrame) Outcome {
		cx := trap.NewUserCx[int](tf)
		cx.Ret(fromWord(fn(state)))
		return Outcome{}
	}
}

// Wrap1 adapts a one-argument handler.
func Wrap1[S any, A1, R Word](fn func(state S, a1 A1) R) Handler[S] {
	return func(state S, tf *trap.TrapFrame) Outcome {
		cx := trap.NewUserCx[int](tf)
		args := cx.Args(1)
		cx.Ret(fromWord(fn(state, toWord[A1](args[0]))))
		return Outcome{}
	}
}

// Wrap2 adapts a two-argument handler.
func Wrap2[S any, A1, A2, R Word](fn func(state S, a1 A1, a2 A2) R) Handler[S] {
	return func(state S, tf *trap.TrapFrame) Outcome {
		cx := trap.NewUserCx[int](tf)
		args := cx.Args(2)
		cx.Ret(fromWord(fn(state, toWord[A1](args[0]), toWord[A2](args[1]))))
		return Outcome{}
	}
}

// Wrap3 adapts a three-argument handler.
func Wrap3[S any, A1, A2, A3, R Word](fn func(state S, a1 A1, a2 A2, a3 A3) R) Handler[S] {
	return func(state S, tf *trap.TrapFrame) Outcome {
		cx := trap.NewUserCx[int](tf)
		args := cx.Args(3)
		cx.Ret(fromWord(fn(state, toWord[A1](args[0]), toWord[A2](args[1]), toWord[A3](args[2]))))
		return Outcome{}
	}
}

// WrapExit adapts a handler that terminates the task (e.g. sys_exit):
// its return value is an exit code, not an a0 register value.
func WrapExit[S any](fn func(state S, code int32)) Handler[S] {
	return func(state S, tf *trap.TrapFrame) Outcome {
		cx := trap.NewUserCx[int](tf)
		args := cx.Args(1)
		code := int32(args[0])
		fn(state, code)
		return Outcome{Exit: true, ExitCode: code}
	}
}
