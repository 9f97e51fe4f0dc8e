package vfs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/opfs"
	"github.com/wippyai/wasm-sqlite/resource"
	"github.com/wippyai/wasm-sqlite/s11n"
	"github.com/wippyai/wasm-sqlite/shm"
	"github.com/wippyai/wasm-sqlite/sqlite"
	"github.com/wippyai/wasm-sqlite/storage"
)

// pollSlice bounds each wait on rc so a dead worker is noticed.
const pollSlice = time.Second

// FileID identifies an open file. The engine passes its file-object
// pointers; Go-level handles use negative IDs.
type FileID int64

type fileState struct {
	name  string
	flags sqlite.OpenFlag
	lock  sqlite.LockLevel
}

// OpStats are the synchronous-side counters for one operation.
type OpStats struct {
	Count int64         `json:"count"`
	Wait  time.Duration `json:"wait"`
}

// VFS is the synchronous side of the bridge.
type VFS struct {
	log     *zap.Logger
	cfg     Config
	backend storage.Backend
	block   *shm.Block
	ctl     *shm.ControlBlock
	ser     *s11n.Serializer
	fileBuf []byte
	worker  *opfs.Worker
	ids     map[opfs.Op]int32

	busy    atomic.Bool
	closed  atomic.Bool
	closing atomic.Bool

	// serial orders the Go-level helpers among themselves.
	serial sync.Mutex

	mu      sync.Mutex
	files   map[FileID]*fileState
	stats   map[opfs.Op]*OpStats
	lastErr string

	handles *resource.Table[*File]
}

// Install starts a worker over backend and completes the init handshake.
func Install(ctx context.Context, backend storage.Backend, cfg *Config) (*VFS, error) {
	c := cfg.withDefaults()
	log := c.Logger.Named("vfs")

	block, err := shm.NewBlock(c.FileBufferSize, c.S11nSize)
	if err != nil {
		return nil, err
	}
	region, err := block.Region(block.S11nOffset(), block.S11nSize())
	if err != nil {
		_ = block.Free()
		return nil, err
	}

	ids := make(map[opfs.Op]int32, len(c.OpIDs))
	for name, id := range c.OpIDs {
		ids[opfs.Op(name)] = id
	}
	v := &VFS{
		log:     opfs.LoggerForVerbosity(log, c.Verbose),
		cfg:     c,
		backend: backend,
		block:   block,
		ctl:     block.Control(),
		ser:     s11n.New(region, !c.BigEndian),
		fileBuf: block.FileBuffer(),
		ids:     ids,
		files:   make(map[FileID]*fileState),
		stats:   make(map[opfs.Op]*OpStats),
		handles: resource.NewTable[*File](),
	}
	v.handles.Subscribe(resource.ObserverFunc(v.logHandleEvent))

	v.worker = opfs.Spawn(context.WithoutCancel(ctx), backend, c.Logger)
	if err := v.handshake(ctx); err != nil {
		v.worker.Stop()
		_ = block.Free()
		return nil, err
	}
	v.log.Debug("installed",
		zap.Int("file_buffer", c.FileBufferSize),
		zap.Int("s11n_size", c.S11nSize),
		zap.Int("verbose", c.Verbose))
	return v, nil
}

func (v *VFS) handshake(ctx context.Context) error {
	timer := time.NewTimer(v.cfg.InitTimeout)
	defer timer.Stop()

	recv := func(want string) error {
		select {
		case m := <-v.worker.Messages():
			if m.Err != nil {
				return m.Err
			}
			if m.Type != want {
				return errors.New(errors.PhaseInit, errors.KindInvalidData).
					Detail("expected %s, got %s", want, m.Type).
					Build()
			}
			return nil
		case <-timer.C:
			return errors.New(errors.PhaseInit, errors.KindTimeout).
				Detail("no %s within %s", want, v.cfg.InitTimeout).
				Build()
		case <-ctx.Done():
			return errors.Wrap(errors.PhaseInit, errors.KindTimeout, ctx.Err(), "handshake cancelled")
		}
	}

	if err := recv(opfs.MsgLoaded); err != nil {
		return err
	}
	v.worker.Post(opfs.Message{Type: opfs.MsgInit, Init: &opfs.InitOptions{
		Block:           v.block,
		OpIDs:           v.cfg.OpIDs,
		Codes:           *v.cfg.Codes,
		LittleEndian:    !v.cfg.BigEndian,
		Verbose:         v.cfg.Verbose,
		FileBufferSize:  v.cfg.FileBufferSize,
		S11nOffset:      v.block.S11nOffset(),
		S11nSize:        v.block.S11nSize(),
		MetricsInterval: v.cfg.MetricsInterval,
	}})
	return recv(opfs.MsgInited)
}

func (v *VFS) logHandleEvent(e resource.Event) {
	f, _ := e.Value.(*File)
	if f == nil {
		return
	}
	v.log.Debug("file handle",
		zap.Stringer("event", e.Type),
		zap.Uint32("handle", uint32(e.Handle)),
		zap.String("name", f.name))
}

// opRun posts one operation and blocks until the worker answers.
func (v *VFS) opRun(op opfs.Op, args ...s11n.Value) sqlite.ResultCode {
	return v.opRunWith(op, nil, nil, args...)
}

// opRunWith is opRun with hooks that touch the shared block. before runs once
// the operation owns the block and after runs with the result code before
// ownership is released. Neither runs if the VFS is closed.
func (v *VFS) opRunWith(op opfs.Op, before func(), after func(sqlite.ResultCode), args ...s11n.Value) sqlite.ResultCode {
	if v.closed.Load() {
		v.setLastError("vfs is closed")
		return v.cfg.Codes.IOErr
	}
	if !v.busy.CompareAndSwap(false, true) {
		if v.closed.Load() {
			v.setLastError("vfs is closed")
			return v.cfg.Codes.IOErr
		}
		panic("vfs: " + string(op) + " submitted while another operation is in flight")
	}
	defer v.busy.Store(false)
	id, ok := v.ids[op]
	if !ok {
		v.setLastError("no ID for operation " + string(op))
		return v.cfg.Codes.NotFound
	}

	if before != nil {
		before()
	}
	start := time.Now()
	v.ser.Serialize(args...)
	v.ctl.Store(shm.SlotRC, -1)
	v.ctl.Store(shm.SlotWhichOp, id)
	v.ctl.Notify(shm.SlotWhichOp, 1)

	for v.ctl.Load(shm.SlotRC) == -1 {
		if v.ctl.Wait(shm.SlotRC, -1, pollSlice) != shm.WaitTimedOut {
			continue
		}
		select {
		case <-v.worker.Done():
			v.setLastError("storage worker exited")
			return v.cfg.Codes.IOErr
		default:
		}
	}
	rc := sqlite.ResultCode(v.ctl.Load(shm.SlotRC))
	v.record(op, time.Since(start))

	if rc != v.cfg.Codes.OK {
		msg := v.payloadMessage()
		if msg == "" {
			msg = rc.String()
		}
		v.setLastError(msg)
		v.log.Debug("operation failed", zap.String("op", string(op)), zap.Stringer("rc", rc))
	}
	if after != nil {
		after(rc)
	}
	return rc
}

func (v *VFS) payloadMessage() string {
	vals, err := v.ser.Deserialize()
	if err != nil || len(vals) == 0 || vals[0].Kind() != s11n.KindString {
		return ""
	}
	return vals[0].Str()
}

func (v *VFS) record(op opfs.Op, d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := v.stats[op]
	if s == nil {
		s = &OpStats{}
		v.stats[op] = s
	}
	s.Count++
	s.Wait += d
}

func (v *VFS) setLastError(msg string) {
	v.mu.Lock()
	v.lastErr = msg
	v.mu.Unlock()
}

// Stats returns the synchronous-side counters keyed by operation.
func (v *VFS) Stats() map[string]OpStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]OpStats, len(v.stats))
	for op, s := range v.stats {
		out[string(op)] = *s
	}
	return out
}

// WorkerMetrics returns the worker's metrics snapshot.
func (v *VFS) WorkerMetrics() opfs.Snapshot {
	return v.worker.Metrics().Snapshot()
}

// DumpMetrics logs the worker metrics at info level through the configured logger.
func (v *VFS) DumpMetrics() {
	v.worker.Metrics().Dump(v.cfg.Logger.Named("opfs"))
}

// Codes returns the result code constants in use.
func (v *VFS) Codes() sqlite.Codes { return *v.cfg.Codes }

// Backend returns the storage backend.
func (v *VFS) Backend() storage.Backend { return v.backend }

// FileBufferSize is the largest span moved per xRead/xWrite round trip.
func (v *VFS) FileBufferSize() int { return len(v.fileBuf) }

// Close closes Go-level handles, stops the worker and frees the shared
// memory. Errors are aggregated.
func (v *VFS) Close() error {
	if !v.closing.CompareAndSwap(false, true) {
		return nil
	}
	var result *multierror.Error
	if err := v.handles.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	v.closed.Store(true)
	// Wait out an operation in flight and keep the slot taken for good.
	for !v.busy.CompareAndSwap(false, true) {
		time.Sleep(time.Millisecond)
	}

	v.worker.Stop()
	if err := v.block.Free(); err != nil {
		result = multierror.Append(result, errors.Wrap(errors.PhaseShm, errors.KindIO, err, "freeing shared memory"))
	}
	return result.ErrorOrNil()
}
