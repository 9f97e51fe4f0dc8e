package opfs

import (
	"time"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/shm"
	"github.com/wippyai/wasm-sqlite/sqlite"
)

// DefaultVerbose is used when InitOptions.Verbose is negative.
const DefaultVerbose = 2

// InitOptions is the payload of the opfs-async-init message.
type InitOptions struct {
	// Block is the shared memory: control block plus I/O region.
	Block *shm.Block
	// OpIDs maps every name in AllOps to its non-zero wire ID.
	OpIDs map[string]int32
	// Codes carries the engine constants used for status translation.
	Codes sqlite.Codes

	LittleEndian   bool
	Verbose        int
	FileBufferSize int
	S11nOffset     int
	S11nSize       int

	// MetricsInterval enables a periodic metrics dump when positive.
	MetricsInterval time.Duration
}

func (o *InitOptions) validate() error {
	if o == nil || o.Block == nil {
		return errors.InvalidInput(errors.PhaseInit, "shared block is required")
	}
	io := len(o.Block.IO())
	if o.FileBufferSize <= 0 || o.FileBufferSize > io {
		return errors.New(errors.PhaseInit, errors.KindInvalidInput).
			Detail("file buffer size %d outside shared region of %d bytes", o.FileBufferSize, io).
			Build()
	}
	if o.S11nSize <= 0 || o.S11nOffset < o.FileBufferSize || o.S11nOffset+o.S11nSize > io {
		return errors.New(errors.PhaseInit, errors.KindInvalidInput).
			Detail("serialization region [%d,%d) must follow the file buffer within %d bytes",
				o.S11nOffset, o.S11nOffset+o.S11nSize, io).
			Build()
	}
	if missing, ok := o.Codes.Validate(); !ok {
		return errors.New(errors.PhaseInit, errors.KindInvalidInput).
			Detail("result code %s is not set", missing).
			Build()
	}

	var missing []string
	for _, op := range AllOps {
		if id, ok := o.OpIDs[string(op)]; !ok || id == 0 {
			missing = append(missing, string(op))
		}
	}
	if len(missing) > 0 {
		return &errors.MissingOpsError{Ops: missing}
	}

	known := make(map[string]bool, len(AllOps))
	for _, op := range AllOps {
		known[string(op)] = true
	}
	seen := make(map[int32]string, len(o.OpIDs))
	for _, name := range OpNames(o.OpIDs) {
		id := o.OpIDs[name]
		if !known[name] {
			return errors.New(errors.PhaseInit, errors.KindInvalidInput).
				Detail("unknown operation %q", name).
				Build()
		}
		if prev, dup := seen[id]; dup {
			return errors.New(errors.PhaseInit, errors.KindInvalidInput).
				Value(id).
				Detail("operations %s and %s share ID %d", prev, name, id).
				Build()
		}
		seen[id] = name
	}
	return nil
}
