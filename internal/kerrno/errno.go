// Package kerrno defines the Linux errno surface that kernel operations and
// syscall handlers return, in place of ad-hoc error strings.
package kerrno

import "errors"

// Errno is a Linux-compatible error number. It implements error so it can be
// returned directly from kernel functions and checked with errors.Is.
type Errno int32

func (e Errno) Error() string {
	if s, ok := names[e]; ok {
		return s
	}
	return "errno " + itoa(int32(e))
}

// Negate returns the value placed in a0 on syscall return: the negative of
// the errno number, per the RISC-V ELF syscall ABI (§6 of the spec).
func (e Errno) Negate() int64 {
	return -int64(e)
}

// Linux-compatible errno values actually used by this kernel. Values match
// the standard asm-generic numbering.
const (
	EPERM   Errno = 1
	ENOENT  Errno = 2
	EIO     Errno = 5
	EBADF   Errno = 9
	ECHILD  Errno = 10
	EAGAIN  Errno = 11
	ENOMEM  Errno = 12
	EACCES  Errno = 13
	EFAULT  Errno = 14
	EBUSY   Errno = 16
	EEXIST  Errno = 17
	ENOTDIR Errno = 20
	EISDIR  Errno = 21
	EINVAL  Errno = 22
	ENOSPC  Errno = 28
	ESPIPE  Errno = 29
	ENOSYS  Errno = 38
	ENOTSUP Errno = 95
)

var names = map[Errno]string{
	EPERM:   "operation not permitted",
	ENOENT:  "no such file or directory",
	EIO:     "i/o error",
	EBADF:   "bad file descriptor",
	ECHILD:  "no child processes",
	EAGAIN:  "resource temporarily unavailable",
	ENOMEM:  "cannot allocate memory",
	EACCES:  "permission denied",
	EFAULT:  "bad address",
	EBUSY:   "device or resource busy",
	EEXIST:  "file exists",
	ENOTDIR: "not a directory",
	EISDIR:  "is a directory",
	EINVAL:  "invalid argument",
	ENOSPC:  "no space left on device",
	ESPIPE:  "illegal seek",
	ENOSYS:  "function not implemented",
	ENOTSUP: "operation not supported",
}

// FromError maps an arbitrary error to an Errno, defaulting to EIO for
// errors this kernel doesn't otherwise recognise (mirroring spec.md §7:
// "device-layer errors propagate up as EIO").
func FromError(err error) Errno {
	if err == nil {
		return 0
	}
	var e Errno
	if errors.As(err, &e) {
		return e
	}
	return EIO
}

func itoa(v int32) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
