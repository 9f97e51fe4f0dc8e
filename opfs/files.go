package opfs

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sqlite/storage"
)

// openFile is the worker's record of one xOpen.
type openFile struct {
	path          string
	leaf          string
	dir           storage.Directory
	file          storage.File
	access        storage.AccessHandle
	readOnly      bool
	deleteOnClose bool
}

// close releases the access handle and, when requested, removes the file.
// Failures are logged only.
func (f *openFile) close(ctx context.Context, log *zap.Logger) {
	if f.access != nil {
		if err := f.access.Close(); err != nil {
			log.Warn("closing access handle", zap.String("path", f.path), zap.Error(err))
		}
		f.access = nil
	}
	if f.deleteOnClose {
		if err := f.dir.RemoveEntry(ctx, f.leaf, false); err != nil {
			log.Warn("ignoring delete-on-close failure", zap.String("path", f.path), zap.Error(err))
		}
	}
}
