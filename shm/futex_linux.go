//go:build linux

package shm

import (
	"math"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	futexWait    = 0
	futexWake    = 1
	futexPrivate = 128
)

func wait(addr *int32, expected int32, timeout time.Duration) WaitResult {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		var tsp *unix.Timespec
		if timeout >= 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return WaitTimedOut
			}
			ts := unix.NsecToTimespec(int64(remaining))
			tsp = &ts
		}
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr)),
			futexWait|futexPrivate,
			uintptr(uint32(expected)),
			uintptr(unsafe.Pointer(tsp)),
			0, 0)
		switch errno {
		case 0:
			return WaitOK
		case unix.EAGAIN:
			return WaitNotEqual
		case unix.ETIMEDOUT:
			return WaitTimedOut
		case unix.EINTR:
			continue
		default:
			// Unexpected errno; report a wake so the caller re-checks the slot.
			return WaitOK
		}
	}
}

func notify(addr *int32, n int) int {
	if n < 0 || n > math.MaxInt32 {
		n = math.MaxInt32
	}
	woken, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWake|futexPrivate,
		uintptr(n),
		0, 0, 0)
	if errno != 0 {
		return 0
	}
	return int(woken)
}
