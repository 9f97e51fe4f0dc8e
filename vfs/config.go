package vfs

import (
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sqlite/opfs"
	"github.com/wippyai/wasm-sqlite/s11n"
	"github.com/wippyai/wasm-sqlite/sqlite"
)

const (
	// DefaultFileBufferSize is the default size of the file data buffer.
	DefaultFileBufferSize = 64 * 1024
	// DefaultInitTimeout bounds the init handshake.
	DefaultInitTimeout = 10 * time.Second
	// SectorSize is reported by xSectorSize.
	SectorSize = 4096
)

// Config holds optional settings. The zero value is usable.
type Config struct {
	Logger *zap.Logger
	// OpIDs overrides the operation numbering; nil uses opfs.DefaultOpIDs.
	OpIDs map[string]int32
	// Codes overrides the engine constants; nil uses sqlite.DefaultCodes.
	Codes *sqlite.Codes

	// Verbose: 1 errors, 2 warnings, 3 debug. 0 means 2, negative silences.
	Verbose        int
	FileBufferSize int
	S11nSize       int
	BigEndian      bool

	MetricsInterval time.Duration
	InitTimeout     time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{}
	if c != nil {
		out = *c
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.OpIDs == nil {
		out.OpIDs = opfs.DefaultOpIDs()
	}
	if out.Codes == nil {
		codes := sqlite.DefaultCodes()
		out.Codes = &codes
	}
	switch {
	case out.Verbose == 0:
		out.Verbose = opfs.DefaultVerbose
	case out.Verbose < 0:
		out.Verbose = 0
	}
	if out.FileBufferSize <= 0 {
		out.FileBufferSize = DefaultFileBufferSize
	}
	if out.S11nSize <= 0 {
		out.S11nSize = s11n.DefaultRegionSize
	}
	if out.InitTimeout <= 0 {
		out.InitTimeout = DefaultInitTimeout
	}
	return out
}
