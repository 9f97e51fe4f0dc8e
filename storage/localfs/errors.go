package localfs

import (
	"io/fs"
	"syscall"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/storage"
)

func mapOSError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return storage.NewError(storage.ErrNotFound, op, name, err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return storage.NewError(storage.ErrPermission, op, name, err)
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if sentinel := mapErrno(errno); sentinel != nil {
			return storage.NewError(sentinel, op, name, err)
		}
	}
	return errors.IO(op, name, err)
}

func mapErrno(errno syscall.Errno) *errors.Error {
	switch errno {
	case syscall.ENOENT:
		return storage.ErrNotFound
	case syscall.EACCES, syscall.EPERM:
		return storage.ErrPermission
	case syscall.ENOTDIR, syscall.EISDIR:
		return storage.ErrTypeMismatch
	case syscall.ENOTEMPTY, syscall.EEXIST:
		return storage.ErrNotEmpty
	case syscall.ENAMETOOLONG, syscall.EINVAL:
		return storage.ErrInvalidName
	case syscall.EBUSY:
		return storage.ErrLocked
	}
	return nil
}
