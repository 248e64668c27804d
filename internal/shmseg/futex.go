package shmseg

import (
	"errors"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FutexWait and FutexWake are raw FUTEX_WAIT/FUTEX_WAKE syscalls over a
// 32-bit aligned word, shared by the segment semaphore and by
// internal/ring's notification word. golang.org/x/sys/unix exposes the
// SYS_FUTEX syscall number per architecture but no friendly wrapper, so this
// is the one place the core necessarily drops to a raw syscall — grounded on
// original_source's RingBuffer.h futex_wait/futex_wake static helpers.
//
// FutexWait blocks while *addr == expected, waking on a matching
// FUTEX_WAKE, a spurious wake (ret == 0, re-check by caller), or timeout.
// A zero timeout blocks indefinitely.
func FutexWait(addr *uint32, expected uint32, timeout time.Duration) error {
	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAIT),
		uintptr(expected),
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)

	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return errTimedOut
	default:
		return errno
	}
}

// FutexWake wakes up to count waiters blocked on addr.
func FutexWake(addr *uint32, count int) int {
	n, _, _ := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(unix.FUTEX_WAKE),
		uintptr(count),
		0, 0, 0,
	)
	return int(n)
}

// errTimedOut is returned by FutexWait on ETIMEDOUT.
var errTimedOut = errors.New("futex wait timed out")

// ErrTimedOut reports whether err is the sentinel produced by a timed-out
// futex wait.
func ErrTimedOut(err error) bool {
	return errors.Is(err, errTimedOut)
}
