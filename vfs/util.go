package vfs

import (
	"context"
	"io"
	"math/rand/v2"

	"github.com/cespare/xxhash"

	"github.com/wippyai/wasm-sqlite/opfs"
	"github.com/wippyai/wasm-sqlite/s11n"
	"github.com/wippyai/wasm-sqlite/sqlite"
	"github.com/wippyai/wasm-sqlite/storage"
)

const (
	// DefaultRandomNameLen is the RandomFilename length used for n <= 0.
	DefaultRandomNameLen = 16
	filenameChars        = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// EntryExists reports whether name is an existing file or directory. It
// asks the backend directly rather than going through the worker.
func (v *VFS) EntryExists(ctx context.Context, name string) (bool, error) {
	return storage.Exists(ctx, v.backend, name)
}

// MkdirAll creates name and its missing parents.
func (v *VFS) MkdirAll(name string) error {
	return v.call("mkdir", name, func() sqlite.ResultCode {
		return v.Mkdir(name)
	})
}

// Unlink removes name. A non-empty directory needs recursive.
func (v *VFS) Unlink(name string, recursive bool) error {
	return v.call("unlink", name, func() sqlite.ResultCode {
		return v.unlink(name, recursive)
	})
}

func (v *VFS) unlink(name string, recursive bool) sqlite.ResultCode {
	return v.opRun(opfs.OpXDelete, s11n.String(name), s11n.Int(0), s11n.Bool(recursive))
}

// RandomFilename returns n random letters and digits.
func RandomFilename(n int) string {
	if n <= 0 {
		n = DefaultRandomNameLen
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = filenameChars[rand.IntN(len(filenameChars))]
	}
	return string(b)
}

// CreateFile creates or replaces name with data. When size is larger than
// data the file is extended with zeros; a negative size keeps len(data).
func (v *VFS) CreateFile(name string, data []byte, size int64) (err error) {
	f, err := v.OpenFile(name, sqlite.OPEN_READWRITE|sqlite.OPEN_CREATE)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if size < int64(len(data)) {
		size = int64(len(data))
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		return err
	}
	return f.Sync()
}

// Export returns the full contents of name.
func (v *VFS) Export(name string) (data []byte, err error) {
	f, err := v.OpenFile(name, sqlite.OPEN_READONLY)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	data = make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return data, nil
}

// Digest returns the xxhash of the contents of name.
func (v *VFS) Digest(name string) (uint64, error) {
	data, err := v.Export(name)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
