// Package storagetest runs a common behavioral suite against storage backends.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/storage"
)

// Run exercises a fresh backend from newBackend in each subtest.
func Run(t *testing.T, newBackend func(t *testing.T) storage.Backend) {
	ctx := context.Background()

	t.Run("ResolveCreatesDirs", func(t *testing.T) {
		b := newBackend(t)
		dir, leaf, err := storage.ResolvePath(ctx, b, "/a/b/c.db", true)
		require.NoError(t, err)
		assert.Equal(t, "b", dir.Name())
		assert.Equal(t, "c.db", leaf)

		_, _, err = storage.ResolvePath(ctx, b, "/x/y/z.db", false)
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("ReadWriteSize", func(t *testing.T) {
		b := newBackend(t)
		h := openHandle(t, b, "f.db")
		defer h.Close()

		n, err := h.WriteAt(ctx, []byte("hello"), 3)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		size, err := h.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(8), size)

		buf := make([]byte, 10)
		n, err = h.ReadAt(ctx, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, 8, n)
		assert.Equal(t, []byte{0, 0, 0, 'h', 'e', 'l', 'l', 'o'}, buf[:n])

		n, err = h.ReadAt(ctx, buf, 100)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		require.NoError(t, h.Flush(ctx))
	})

	t.Run("Truncate", func(t *testing.T) {
		b := newBackend(t)
		h := openHandle(t, b, "t.db")
		defer h.Close()

		_, err := h.WriteAt(ctx, []byte("0123456789"), 0)
		require.NoError(t, err)
		require.NoError(t, h.Truncate(ctx, 4))
		size, err := h.Size(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), size)

		require.NoError(t, h.Truncate(ctx, 6))
		buf := make([]byte, 6)
		n, err := h.ReadAt(ctx, buf, 0)
		require.NoError(t, err)
		assert.Equal(t, []byte{'0', '1', '2', '3', 0, 0}, buf[:n])
	})

	t.Run("ExclusiveAccessHandle", func(t *testing.T) {
		b := newBackend(t)
		h := openHandle(t, b, "x.db")

		root, err := b.Root(ctx)
		require.NoError(t, err)
		f, err := root.GetFile(ctx, "x.db", false)
		require.NoError(t, err)
		_, err = f.CreateAccessHandle(ctx)
		assert.True(t, errors.Is(err, storage.ErrLocked))

		require.NoError(t, h.Close())
		h2, err := f.CreateAccessHandle(ctx)
		require.NoError(t, err)
		require.NoError(t, h2.Close())
	})

	t.Run("ClosedHandle", func(t *testing.T) {
		b := newBackend(t)
		h := openHandle(t, b, "c.db")
		require.NoError(t, h.Close())
		_, err := h.Size(ctx)
		assert.True(t, errors.Is(err, storage.ErrClosed))
		assert.NoError(t, h.Close())
	})

	t.Run("TypeMismatch", func(t *testing.T) {
		b := newBackend(t)
		root, err := b.Root(ctx)
		require.NoError(t, err)
		_, err = root.GetDirectory(ctx, "d", true)
		require.NoError(t, err)
		_, err = root.GetFile(ctx, "d", false)
		assert.True(t, errors.Is(err, storage.ErrTypeMismatch))
	})

	t.Run("InvalidName", func(t *testing.T) {
		b := newBackend(t)
		root, err := b.Root(ctx)
		require.NoError(t, err)
		for _, name := range []string{"", ".", "..", "a/b"} {
			_, err = root.GetFile(ctx, name, true)
			assert.True(t, errors.Is(err, storage.ErrInvalidName), "name %q", name)
		}
	})

	t.Run("RemoveEntry", func(t *testing.T) {
		b := newBackend(t)
		_, err := storage.ResolveDir(ctx, b, "/p/q", true)
		require.NoError(t, err)
		root, err := b.Root(ctx)
		require.NoError(t, err)

		err = root.RemoveEntry(ctx, "p", false)
		assert.True(t, errors.Is(err, storage.ErrNotEmpty))

		require.NoError(t, root.RemoveEntry(ctx, "p", true))
		err = root.RemoveEntry(ctx, "p", true)
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		ok, err := storage.Exists(ctx, b, "/p")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Entries", func(t *testing.T) {
		b := newBackend(t)
		dir, err := storage.ResolveDir(ctx, b, "/e", true)
		require.NoError(t, err)
		_, err = dir.GetFile(ctx, "b.db", true)
		require.NoError(t, err)
		_, err = dir.GetDirectory(ctx, "a", true)
		require.NoError(t, err)

		entries, err := dir.Entries(ctx)
		require.NoError(t, err)
		assert.Equal(t, []storage.Entry{
			{Name: "a", Kind: storage.KindDirectory},
			{Name: "b.db", Kind: storage.KindFile},
		}, entries)

		ok, err := storage.Exists(ctx, b, "/e/b.db")
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = storage.Exists(ctx, b, "/e/b.db/nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func openHandle(t *testing.T, b storage.Backend, name string) storage.AccessHandle {
	t.Helper()
	ctx := context.Background()
	root, err := b.Root(ctx)
	require.NoError(t, err)
	f, err := root.GetFile(ctx, name, true)
	require.NoError(t, err)
	h, err := f.CreateAccessHandle(ctx)
	require.NoError(t, err)
	return h
}
