package main

import (
	"github.com/joeycumines/go-rvkernel/internal/syscallreg"
	"github.com/joeycumines/go-rvkernel/internal/task"
	"github.com/joeycumines/go-rvkernel/internal/trap"
)

// RISC-V Linux syscall numbers for the handful this reference binary
// wires up; the full table is explicitly out of scope (spec.md §1
// excludes "the concrete syscall dispatch table entries beyond the
// shape of the handler registry").
const (
	sysWrite uint64 = 64
	sysExit  uint64 = 93
)

// newSyscallTable builds the syscall registry the reference kernel's
// init task dispatches through.
func newSyscallTable() *syscallreg.Registry[*task.State] {
	reg := syscallreg.New[*task.State]()

	reg.Register(sysWrite, syscallreg.Wrap3(func(s *task.State, fd int32, bufAddr uint64, n uint64) int64 {
		f, ok := s.Files.Get(fd)
		if !ok {
			return -1
		}
		buf := make([]byte, n)
		if err := trap.CheckedCopy(s.Space, bufAddr, buf); err != nil {
			return -1
		}
		written, err := f.WriteAt(buf)
		if err != nil {
			return -1
		}
		return int64(written)
	}))

	reg.Register(sysExit, syscallreg.WrapExit(func(s *task.State, code int32) {}))

	return reg
}
