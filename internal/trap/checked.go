package trap

import "github.com/joeycumines/go-rvkernel/internal/kerrno"

// UserMemory simulates the checked user-pointer stubs (_checked_copy,
// _checked_zero, _checked_load_u32) and the UA_FAULT resume-address
// machinery: on real hardware a fault inside one of those stubs rewrites
// sepc to UA_FAULT and leaves the faulting address in a0, so the stub's
// caller observes a Result-like outcome instead of crashing the kernel.
// Here, a UserMemory stands in for one hart's view of user address space
// (backed by whatever the Virt/Phys layer has actually committed) and
// reports the same EFAULT outcome a real fault would produce, without any
// assembly or signal handling.
type UserMemory interface {
	// Read copies len(dst) bytes starting at uaddr into dst, returning EFAULT if any byte of the range is not committed/readable.
	Read(uaddr uint64, dst []byte) error
	// Write copies src into user memory at uaddr, returning EFAULT under
	// the same condition as Read.
	Write(uaddr uint64, src []byte) error
}

// CheckedCopy copies len(dst) bytes from the user address uaddr into dst via mem,
// translating a fault into EFAULT exactly as the real stub's UA_FAULT
// rewrite would -- the caller gets an error return, never a kernel fault.
func CheckedCopy(mem UserMemory, uaddr uint64, dst []byte) error {
	if err := mem.Read(uaddr, dst); err != nil {
		return kerrno.EFAULT
	}
	return nil
}

// CheckedZero zeroes n bytes of user memory at uaddr.
func CheckedZero(mem UserMemory, uaddr uint64, n int) error {
	buf := make([]byte, n)
	if err := mem.Write(uaddr, buf); err != nil {
		return kerrno.EFAULT
	}
	return nil
}

// CheckedLoadU32 loads a single little-endian uint32 from user memory.
func CheckedLoadU32(mem UserMemory, uaddr uint64) (uint32, error) {
	var buf [4]byte
	if err := mem.Read(uaddr, buf[:]); err != nil {
		return 0, kerrno.EFAULT
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}
