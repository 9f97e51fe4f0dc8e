package vfs

import (
	"io"
	"sync/atomic"

	"github.com/negrel/assert"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/resource"
	"github.com/wippyai/wasm-sqlite/sqlite"
)

// File is a Go-level handle on a file opened through the bridge. Its
// methods may be called from any goroutine.
type File struct {
	v      *VFS
	name   string
	fid    FileID
	handle resource.Handle
	closed atomic.Bool
}

var (
	_ io.ReaderAt = (*File)(nil)
	_ io.WriterAt = (*File)(nil)
	_ io.Closer   = (*File)(nil)
)

// OpenFile opens name with flags. Go-level handles take negative file IDs
// so they never collide with engine file objects.
func (v *VFS) OpenFile(name string, flags sqlite.OpenFlag) (*File, error) {
	f := &File{v: v, name: name}
	h, err := v.handles.Insert(f)
	if err != nil {
		return nil, err
	}
	f.handle = h
	f.fid = -FileID(h)
	assert.Less(int64(f.fid), int64(0), "go-level file IDs are negative")

	if err := v.call("open", name, func() sqlite.ResultCode {
		return v.Open(f.fid, name, flags)
	}); err != nil {
		v.handles.Remove(h)
		return nil, err
	}
	return f, nil
}

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.name }

// ID returns the file ID used on the wire.
func (f *File) ID() FileID { return f.fid }

// ReadAt implements io.ReaderAt. Reading past the end returns io.EOF with
// the bytes that were available.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, errors.Closed(errors.PhaseVFS, f.name)
	}
	var rc sqlite.ResultCode
	err := f.v.call("read", f.name, func() sqlite.ResultCode {
		rc = f.v.Read(f.fid, p, off)
		if rc == f.v.cfg.Codes.IOErrShortRead {
			return f.v.cfg.Codes.OK
		}
		return rc
	})
	if err != nil {
		return 0, err
	}
	if rc != f.v.cfg.Codes.IOErrShortRead {
		return len(p), nil
	}
	size, err := f.Size()
	if err != nil {
		return 0, err
	}
	n := max(0, min(int64(len(p)), size-off))
	return int(n), io.EOF
}

// WriteAt implements io.WriterAt.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, errors.Closed(errors.PhaseVFS, f.name)
	}
	if err := f.v.call("write", f.name, func() sqlite.ResultCode {
		return f.v.Write(f.fid, p, off)
	}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Size returns the current file size.
func (f *File) Size() (int64, error) {
	if f.closed.Load() {
		return 0, errors.Closed(errors.PhaseVFS, f.name)
	}
	var size int64
	err := f.v.call("size", f.name, func() sqlite.ResultCode {
		var rc sqlite.ResultCode
		size, rc = f.v.FileSize(f.fid)
		return rc
	})
	return size, err
}

// Truncate sets the file size.
func (f *File) Truncate(size int64) error {
	if f.closed.Load() {
		return errors.Closed(errors.PhaseVFS, f.name)
	}
	return f.v.call("truncate", f.name, func() sqlite.ResultCode {
		return f.v.Truncate(f.fid, size)
	})
}

// Sync flushes the file.
func (f *File) Sync() error {
	if f.closed.Load() {
		return errors.Closed(errors.PhaseVFS, f.name)
	}
	return f.v.call("sync", f.name, func() sqlite.ResultCode {
		return f.v.Sync(f.fid, sqlite.SYNC_NORMAL)
	})
}

// Close releases the file. Closing twice is a no-op.
func (f *File) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.v.handles.Remove(f.handle)
	return f.v.call("close", f.name, func() sqlite.ResultCode {
		return f.v.CloseFile(f.fid)
	})
}

// call runs fn under the helper lock and turns a failing result code into
// an error carrying the last diagnostic. The diagnostic is read before the
// lock is released so another helper cannot replace it.
func (v *VFS) call(op, name string, fn func() sqlite.ResultCode) error {
	v.serial.Lock()
	defer v.serial.Unlock()
	rc := fn()
	if rc == v.cfg.Codes.OK {
		return nil
	}
	return v.rcError(op, name, rc)
}

func (v *VFS) rcError(op, name string, rc sqlite.ResultCode) error {
	_, msg := v.GetLastError()
	kind := errors.KindIO
	if rc == v.cfg.Codes.NotFound {
		kind = errors.KindNotFound
	}
	b := errors.New(errors.PhaseVFS, kind).Op(op).Value(rc)
	if name != "" {
		b = b.Path(name)
	}
	if msg != "" && msg != rc.String() {
		return b.Detail("%s: %s", rc, msg).Build()
	}
	return b.Detail("%s", rc).Build()
}
