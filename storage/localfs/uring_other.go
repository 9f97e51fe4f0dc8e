//go:build !linux

package localfs

import (
	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/storage"
)

func newURingHandle(*osHandle, uint32) (storage.AccessHandle, error) {
	return nil, errors.Unsupported(errors.PhaseStorage, "io_uring")
}
