// Package storage defines the hierarchical storage backend the worker drives:
// directories that hold named files and subdirectories, and files that grant
// one exclusive read/write access handle at a time.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/wippyai/wasm-sqlite/errors"
)

// Sentinel errors. Backend errors match them with errors.Is.
var (
	ErrNotFound     = &errors.Error{Phase: errors.PhaseStorage, Kind: errors.KindNotFound}
	ErrTypeMismatch = &errors.Error{Phase: errors.PhaseStorage, Kind: errors.KindTypeMismatch}
	ErrNotEmpty     = &errors.Error{Phase: errors.PhaseStorage, Kind: errors.KindNotEmpty}
	ErrLocked       = &errors.Error{Phase: errors.PhaseStorage, Kind: errors.KindLocked}
	ErrInvalidName  = &errors.Error{Phase: errors.PhaseStorage, Kind: errors.KindInvalidInput}
	ErrClosed       = &errors.Error{Phase: errors.PhaseStorage, Kind: errors.KindClosed}
	ErrPermission   = &errors.Error{Phase: errors.PhaseStorage, Kind: errors.KindPermission}
)

// EntryKind tells files from directories.
type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindDirectory
)

func (k EntryKind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Entry is one child of a directory.
type Entry struct {
	Name string
	Kind EntryKind
}

// Backend is the storage root.
type Backend interface {
	Root(ctx context.Context) (Directory, error)
}

// Directory is a handle to a directory.
type Directory interface {
	Name() string
	// GetDirectory returns the named subdirectory, creating it when create is set.
	GetDirectory(ctx context.Context, name string, create bool) (Directory, error)
	// GetFile returns the named file, creating an empty one when create is set.
	GetFile(ctx context.Context, name string, create bool) (File, error)
	// RemoveEntry removes a child. Non-empty directories need recursive.
	RemoveEntry(ctx context.Context, name string, recursive bool) error
	Entries(ctx context.Context) ([]Entry, error)
}

// File is a handle to a file.
type File interface {
	Name() string
	// CreateAccessHandle acquires the file's exclusive access handle.
	// It fails with ErrLocked while another handle is open.
	CreateAccessHandle(ctx context.Context) (AccessHandle, error)
}

// AccessHandle is an exclusive read/write handle.
type AccessHandle interface {
	// ReadAt reads up to len(p) bytes at off. Reaching the end of the file
	// is not an error; n reports how much was read.
	ReadAt(ctx context.Context, p []byte, off int64) (n int, err error)
	WriteAt(ctx context.Context, p []byte, off int64) (n int, err error)
	Size(ctx context.Context) (int64, error)
	Truncate(ctx context.Context, size int64) error
	Flush(ctx context.Context) error
	Close() error
}

// NewError builds a storage error matching sentinel.
func NewError(sentinel *errors.Error, op, name string, cause error) error {
	e := errors.IO(op, name, cause)
	e.Kind = sentinel.Kind
	return e
}

// ValidName reports whether name can be a single directory entry.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\x00")
}

// SplitPath normalizes an absolute or relative path into its components.
// "." and ".." are resolved lexically and cannot climb above the root.
func SplitPath(p string) []string {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return nil
	}
	return strings.Split(clean[1:], "/")
}

// ResolvePath walks to the parent directory of p and returns it with the
// leaf name. Missing intermediate directories are created when createDirs
// is set.
func ResolvePath(ctx context.Context, b Backend, p string, createDirs bool) (Directory, string, error) {
	parts := SplitPath(p)
	if len(parts) == 0 {
		return nil, "", NewError(ErrInvalidName, "resolve", p, nil)
	}
	dir, err := b.Root(ctx)
	if err != nil {
		return nil, "", err
	}
	for _, name := range parts[:len(parts)-1] {
		dir, err = dir.GetDirectory(ctx, name, createDirs)
		if err != nil {
			return nil, "", err
		}
	}
	return dir, parts[len(parts)-1], nil
}

// ResolveDir walks to the directory named by p, creating it when create is
// set. An empty path is the root.
func ResolveDir(ctx context.Context, b Backend, p string, create bool) (Directory, error) {
	dir, err := b.Root(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range SplitPath(p) {
		dir, err = dir.GetDirectory(ctx, name, create)
		if err != nil {
			return nil, err
		}
	}
	return dir, nil
}

// Exists reports whether p names an existing file or directory.
func Exists(ctx context.Context, b Backend, p string) (bool, error) {
	parts := SplitPath(p)
	if len(parts) == 0 {
		return true, nil
	}
	dir, leaf, err := ResolvePath(ctx, b, p, false)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTypeMismatch) {
			return false, nil
		}
		return false, err
	}
	entries, err := dir.Entries(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name == leaf {
			return true, nil
		}
	}
	return false, nil
}
