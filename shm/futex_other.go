//go:build !linux

package shm

import (
	"sync/atomic"
	"time"
)

const (
	pollMin = time.Microsecond
	pollMax = time.Millisecond
)

// wait polls with exponential backoff. There is no portable futex, so
// notify cannot wake the waiter early and only the slot change is observed.
func wait(addr *int32, expected int32, timeout time.Duration) WaitResult {
	if atomic.LoadInt32(addr) != expected {
		return WaitNotEqual
	}
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	backoff := pollMin
	for {
		if atomic.LoadInt32(addr) != expected {
			return WaitOK
		}
		if timeout >= 0 && !time.Now().Before(deadline) {
			return WaitTimedOut
		}
		time.Sleep(backoff)
		if backoff < pollMax {
			backoff *= 2
		}
	}
}

func notify(*int32, int) int {
	return 0
}
