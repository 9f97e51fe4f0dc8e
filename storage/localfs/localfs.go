// Package localfs is a storage backend rooted at a directory of the host
// file system. Names never escape the root. Access-handle exclusivity is
// enforced within the process.
package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/storage"
)

// Option configures an FS.
type Option func(*FS)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(fs *FS) {
		if l != nil {
			fs.log = l.Named("localfs")
		}
	}
}

// WithIOUring routes access-handle reads, writes and flushes through a
// per-handle io_uring of the given depth. Ignored where unsupported.
func WithIOUring(entries uint32) Option {
	return func(fs *FS) {
		fs.uringEntries = entries
	}
}

// FS is a directory-rooted backend.
type FS struct {
	log          *zap.Logger
	root         string
	uringEntries uint32

	mu     sync.Mutex
	locked map[string]struct{}
}

// New roots a backend at dir, creating it if needed.
func New(dir string, opts ...Option) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStorage, errors.KindInvalidInput, err, "invalid root")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, mapOSError("mkdir", abs, err)
	}
	fs := &FS{
		log:    zap.NewNop(),
		root:   abs,
		locked: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

// Path returns the absolute root directory.
func (fs *FS) Path() string { return fs.root }

// Root implements storage.Backend.
func (fs *FS) Root(context.Context) (storage.Directory, error) {
	return &dirHandle{fs: fs, path: fs.root}, nil
}

func (fs *FS) lock(path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.locked[path]; ok {
		return false
	}
	fs.locked[path] = struct{}{}
	return true
}

func (fs *FS) unlock(path string) {
	fs.mu.Lock()
	delete(fs.locked, path)
	fs.mu.Unlock()
}

// lockedUnder reports whether path or anything below it holds an access handle.
func (fs *FS) lockedUnder(path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	prefix := path + string(filepath.Separator)
	for p := range fs.locked {
		if p == path || strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

type dirHandle struct {
	fs   *FS
	path string
}

func (d *dirHandle) Name() string {
	if d.path == d.fs.root {
		return ""
	}
	return filepath.Base(d.path)
}

func (d *dirHandle) join(op, name string) (string, error) {
	if !storage.ValidName(name) || strings.ContainsRune(name, filepath.Separator) {
		return "", storage.NewError(storage.ErrInvalidName, op, name, nil)
	}
	return filepath.Join(d.path, name), nil
}

func (d *dirHandle) GetDirectory(_ context.Context, name string, create bool) (storage.Directory, error) {
	full, err := d.join("getDirectory", name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Lstat(full)
	switch {
	case err == nil && !fi.IsDir():
		return nil, storage.NewError(storage.ErrTypeMismatch, "getDirectory", name, nil)
	case err == nil:
	case os.IsNotExist(err) && create:
		if err := os.Mkdir(full, 0o755); err != nil && !os.IsExist(err) {
			return nil, mapOSError("getDirectory", name, err)
		}
	default:
		return nil, mapOSError("getDirectory", name, err)
	}
	return &dirHandle{fs: d.fs, path: full}, nil
}

func (d *dirHandle) GetFile(_ context.Context, name string, create bool) (storage.File, error) {
	full, err := d.join("getFile", name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Lstat(full)
	switch {
	case err == nil && fi.IsDir():
		return nil, storage.NewError(storage.ErrTypeMismatch, "getFile", name, nil)
	case err == nil:
	case os.IsNotExist(err) && create:
		f, err := os.OpenFile(full, os.O_RDWR|os.O_CREATE, 0o644)
		if err != nil {
			return nil, mapOSError("getFile", name, err)
		}
		if err := f.Close(); err != nil {
			return nil, mapOSError("getFile", name, err)
		}
	default:
		return nil, mapOSError("getFile", name, err)
	}
	return &fileHandle{fs: d.fs, path: full}, nil
}

func (d *dirHandle) RemoveEntry(_ context.Context, name string, recursive bool) error {
	full, err := d.join("removeEntry", name)
	if err != nil {
		return err
	}
	fi, err := os.Lstat(full)
	if err != nil {
		return mapOSError("removeEntry", name, err)
	}
	if d.fs.lockedUnder(full) {
		return storage.NewError(storage.ErrLocked, "removeEntry", name, nil)
	}
	if fi.IsDir() && recursive {
		if err := os.RemoveAll(full); err != nil {
			return mapOSError("removeEntry", name, err)
		}
		return nil
	}
	if err := os.Remove(full); err != nil {
		return mapOSError("removeEntry", name, err)
	}
	return nil
}

func (d *dirHandle) Entries(context.Context) ([]storage.Entry, error) {
	des, err := os.ReadDir(d.path)
	if err != nil {
		return nil, mapOSError("entries", d.Name(), err)
	}
	out := make([]storage.Entry, 0, len(des))
	for _, de := range des {
		kind := storage.KindFile
		if de.IsDir() {
			kind = storage.KindDirectory
		}
		out = append(out, storage.Entry{Name: de.Name(), Kind: kind})
	}
	return out, nil
}

type fileHandle struct {
	fs   *FS
	path string
}

func (f *fileHandle) Name() string { return filepath.Base(f.path) }

func (f *fileHandle) CreateAccessHandle(context.Context) (storage.AccessHandle, error) {
	name := f.Name()
	if !f.fs.lock(f.path) {
		return nil, storage.NewError(storage.ErrLocked, "createAccessHandle", name, nil)
	}
	file, err := os.OpenFile(f.path, os.O_RDWR, 0)
	if err != nil {
		f.fs.unlock(f.path)
		return nil, mapOSError("createAccessHandle", name, err)
	}
	h := &osHandle{fs: f.fs, f: file, path: f.path, name: name}
	if f.fs.uringEntries == 0 {
		return h, nil
	}
	uh, err := newURingHandle(h, f.fs.uringEntries)
	if err != nil {
		f.fs.log.Warn("io_uring unavailable, using plain file I/O",
			zap.String("file", name), zap.Error(err))
		return h, nil
	}
	return uh, nil
}

type osHandle struct {
	fs     *FS
	f      *os.File
	path   string
	name   string
	closed bool
}

func (h *osHandle) check(op string) error {
	if h.closed {
		return storage.NewError(storage.ErrClosed, op, h.name, nil)
	}
	return nil
}

func (h *osHandle) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if err := h.check("read"); err != nil {
		return 0, err
	}
	n, err := h.f.ReadAt(p, off)
	if err != nil && err != io.EOF {
		return n, mapOSError("read", h.name, err)
	}
	return n, nil
}

func (h *osHandle) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	if err := h.check("write"); err != nil {
		return 0, err
	}
	n, err := h.f.WriteAt(p, off)
	if err != nil {
		return n, mapOSError("write", h.name, err)
	}
	return n, nil
}

func (h *osHandle) Size(context.Context) (int64, error) {
	if err := h.check("getSize"); err != nil {
		return 0, err
	}
	fi, err := h.f.Stat()
	if err != nil {
		return 0, mapOSError("getSize", h.name, err)
	}
	return fi.Size(), nil
}

func (h *osHandle) Truncate(_ context.Context, size int64) error {
	if err := h.check("truncate"); err != nil {
		return err
	}
	if err := h.f.Truncate(size); err != nil {
		return mapOSError("truncate", h.name, err)
	}
	return nil
}

func (h *osHandle) Flush(context.Context) error {
	if err := h.check("flush"); err != nil {
		return err
	}
	if err := h.f.Sync(); err != nil {
		return mapOSError("flush", h.name, err)
	}
	return nil
}

func (h *osHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	defer h.fs.unlock(h.path)
	if err := h.f.Close(); err != nil {
		return mapOSError("close", h.name, err)
	}
	return nil
}
