//go:build linux

package localfs

import (
	"context"
	"runtime"
	"sync"
	"unsafe"

	"github.com/aethne0/giouring"
	"golang.org/x/sys/unix"
)

// uringHandle performs reads, writes and flushes through a private ring.
// Size, truncate and close go through the plain handle.
type uringHandle struct {
	*osHandle
	mu   sync.Mutex
	ring *giouring.Ring
	fd   int
}

func newURingHandle(h *osHandle, entries uint32) (*uringHandle, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, err
	}
	return &uringHandle{osHandle: h, ring: ring, fd: int(h.f.Fd())}, nil
}

// do submits one prepared SQE and returns its completion result.
func (u *uringHandle) do(prep func(*giouring.SubmissionQueueEntry)) (int32, error) {
	sqe := u.ring.GetSQE()
	if sqe == nil {
		return 0, unix.EBUSY
	}
	prep(sqe)
	sqe.UserData = 1

	if _, err := u.ring.SubmitAndWait(1); err != nil && err != unix.EINTR && err != unix.ETIME {
		return 0, err
	}
	for {
		cqe, err := u.ring.PeekCQE()
		if err == unix.EAGAIN || err == unix.EINTR || err == unix.ETIME || (err == nil && cqe == nil) {
			if _, err := u.ring.SubmitAndWait(1); err != nil && err != unix.EINTR && err != unix.ETIME {
				return 0, err
			}
			continue
		}
		if err != nil {
			return 0, err
		}
		res := cqe.Res
		u.ring.CQESeen(cqe)
		if res < 0 {
			return 0, unix.Errno(-res)
		}
		return res, nil
	}
}

func (u *uringHandle) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if err := u.check("read"); err != nil {
		return 0, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	total := 0
	for total < len(p) {
		buf := p[total:]
		res, err := u.do(func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareRead(u.fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), uint64(off)+uint64(total))
		})
		runtime.KeepAlive(buf)
		if err != nil {
			return total, mapOSError("read", u.name, err)
		}
		if res == 0 {
			break
		}
		total += int(res)
	}
	return total, nil
}

func (u *uringHandle) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	if err := u.check("write"); err != nil {
		return 0, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	total := 0
	for total < len(p) {
		buf := p[total:]
		res, err := u.do(func(sqe *giouring.SubmissionQueueEntry) {
			sqe.PrepareWrite(u.fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), uint64(off)+uint64(total))
		})
		runtime.KeepAlive(buf)
		if err != nil {
			return total, mapOSError("write", u.name, err)
		}
		if res == 0 {
			return total, mapOSError("write", u.name, unix.EIO)
		}
		total += int(res)
	}
	return total, nil
}

func (u *uringHandle) Flush(context.Context) error {
	if err := u.check("flush"); err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, err := u.do(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareFsync(u.fd, 0)
	}); err != nil {
		return mapOSError("flush", u.name, err)
	}
	return nil
}

func (u *uringHandle) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.ring.QueueExit()
	return u.osHandle.Close()
}
