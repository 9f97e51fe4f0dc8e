// Package memfs is an in-memory storage backend.
package memfs

import (
	"context"
	"sort"
	"sync"

	"github.com/wippyai/wasm-sqlite/storage"
)

// FS is an in-memory tree. A single lock guards the whole tree.
type FS struct {
	mu   sync.RWMutex
	root *node
}

type node struct {
	children map[string]*node
	parent   *node
	name     string
	data     []byte
	dir      bool
	locked   bool
}

// New returns an empty tree.
func New() *FS {
	return &FS{root: newDir("", nil)}
}

func newDir(name string, parent *node) *node {
	return &node{name: name, parent: parent, dir: true, children: make(map[string]*node)}
}

// Root implements storage.Backend.
func (fs *FS) Root(context.Context) (storage.Directory, error) {
	return &dirHandle{fs: fs, n: fs.root}, nil
}

// attached reports whether n is still reachable from the root.
func (fs *FS) attached(n *node) bool {
	for ; n != nil; n = n.parent {
		if n == fs.root {
			return true
		}
		if n.parent != nil && n.parent.children[n.name] != n {
			return false
		}
	}
	return false
}

type dirHandle struct {
	fs *FS
	n  *node
}

func (d *dirHandle) Name() string { return d.n.name }

func (d *dirHandle) child(op, name string, create, wantDir bool) (*node, error) {
	if !storage.ValidName(name) {
		return nil, storage.NewError(storage.ErrInvalidName, op, name, nil)
	}
	if !d.fs.attached(d.n) {
		return nil, storage.NewError(storage.ErrNotFound, op, d.n.name, nil)
	}
	c, ok := d.n.children[name]
	if ok {
		if c.dir != wantDir {
			return nil, storage.NewError(storage.ErrTypeMismatch, op, name, nil)
		}
		return c, nil
	}
	if !create {
		return nil, storage.NewError(storage.ErrNotFound, op, name, nil)
	}
	if wantDir {
		c = newDir(name, d.n)
	} else {
		c = &node{name: name, parent: d.n}
	}
	d.n.children[name] = c
	return c, nil
}

func (d *dirHandle) GetDirectory(_ context.Context, name string, create bool) (storage.Directory, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	c, err := d.child("getDirectory", name, create, true)
	if err != nil {
		return nil, err
	}
	return &dirHandle{fs: d.fs, n: c}, nil
}

func (d *dirHandle) GetFile(_ context.Context, name string, create bool) (storage.File, error) {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	c, err := d.child("getFile", name, create, false)
	if err != nil {
		return nil, err
	}
	return &fileHandle{fs: d.fs, n: c}, nil
}

func (d *dirHandle) RemoveEntry(_ context.Context, name string, recursive bool) error {
	d.fs.mu.Lock()
	defer d.fs.mu.Unlock()
	if !storage.ValidName(name) {
		return storage.NewError(storage.ErrInvalidName, "removeEntry", name, nil)
	}
	c, ok := d.n.children[name]
	if !ok || !d.fs.attached(d.n) {
		return storage.NewError(storage.ErrNotFound, "removeEntry", name, nil)
	}
	if c.dir && len(c.children) > 0 && !recursive {
		return storage.NewError(storage.ErrNotEmpty, "removeEntry", name, nil)
	}
	if anyLocked(c) {
		return storage.NewError(storage.ErrLocked, "removeEntry", name, nil)
	}
	delete(d.n.children, name)
	return nil
}

func anyLocked(n *node) bool {
	if n.locked {
		return true
	}
	for _, c := range n.children {
		if anyLocked(c) {
			return true
		}
	}
	return false
}

func (d *dirHandle) Entries(context.Context) ([]storage.Entry, error) {
	d.fs.mu.RLock()
	defer d.fs.mu.RUnlock()
	if !d.fs.attached(d.n) {
		return nil, storage.NewError(storage.ErrNotFound, "entries", d.n.name, nil)
	}
	out := make([]storage.Entry, 0, len(d.n.children))
	for name, c := range d.n.children {
		kind := storage.KindFile
		if c.dir {
			kind = storage.KindDirectory
		}
		out = append(out, storage.Entry{Name: name, Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type fileHandle struct {
	fs *FS
	n  *node
}

func (f *fileHandle) Name() string { return f.n.name }

func (f *fileHandle) CreateAccessHandle(context.Context) (storage.AccessHandle, error) {
	f.fs.mu.Lock()
	defer f.fs.mu.Unlock()
	if !f.fs.attached(f.n) {
		return nil, storage.NewError(storage.ErrNotFound, "createAccessHandle", f.n.name, nil)
	}
	if f.n.locked {
		return nil, storage.NewError(storage.ErrLocked, "createAccessHandle", f.n.name, nil)
	}
	f.n.locked = true
	return &accessHandle{fs: f.fs, n: f.n}, nil
}

type accessHandle struct {
	fs     *FS
	n      *node
	closed bool
}

func (h *accessHandle) check(op string) error {
	if h.closed {
		return storage.NewError(storage.ErrClosed, op, h.n.name, nil)
	}
	return nil
}

func (h *accessHandle) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()
	if err := h.check("read"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, storage.NewError(storage.ErrInvalidName, "read", h.n.name, nil)
	}
	if off >= int64(len(h.n.data)) {
		return 0, nil
	}
	return copy(p, h.n.data[off:]), nil
}

func (h *accessHandle) WriteAt(_ context.Context, p []byte, off int64) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if err := h.check("write"); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, storage.NewError(storage.ErrInvalidName, "write", h.n.name, nil)
	}
	end := off + int64(len(p))
	if end > int64(len(h.n.data)) {
		h.n.data = grow(h.n.data, int(end))
	}
	return copy(h.n.data[off:], p), nil
}

func (h *accessHandle) Size(context.Context) (int64, error) {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()
	if err := h.check("getSize"); err != nil {
		return 0, err
	}
	return int64(len(h.n.data)), nil
}

func (h *accessHandle) Truncate(_ context.Context, size int64) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if err := h.check("truncate"); err != nil {
		return err
	}
	if size < 0 {
		return storage.NewError(storage.ErrInvalidName, "truncate", h.n.name, nil)
	}
	if size <= int64(len(h.n.data)) {
		clear(h.n.data[size:])
		h.n.data = h.n.data[:size]
		return nil
	}
	h.n.data = grow(h.n.data, int(size))
	return nil
}

func (h *accessHandle) Flush(context.Context) error {
	h.fs.mu.RLock()
	defer h.fs.mu.RUnlock()
	return h.check("flush")
}

func (h *accessHandle) Close() error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.n.locked = false
	return nil
}

// grow extends b to n bytes, zero-filling the new tail.
func grow(b []byte, n int) []byte {
	if n <= cap(b) {
		old := len(b)
		b = b[:n]
		clear(b[old:])
		return b
	}
	nb := make([]byte, n, max(n, 2*cap(b)))
	copy(nb, b)
	return nb
}
