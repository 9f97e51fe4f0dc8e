package opfs

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/s11n"
	"github.com/wippyai/wasm-sqlite/shm"
	"github.com/wippyai/wasm-sqlite/sqlite"
	"github.com/wippyai/wasm-sqlite/storage"
)

// Message types exchanged with the worker.
const (
	MsgLoaded     = "opfs-async-loaded"
	MsgInit       = "opfs-async-init"
	MsgInited     = "opfs-async-inited"
	MsgInitFailed = "opfs-async-init-failed"
)

// waitTimeout bounds each wait on whichOp so housekeeping and shutdown
// are noticed.
const waitTimeout = 500 * time.Millisecond

// Message is a control message to or from the worker.
type Message struct {
	Init *InitOptions
	Err  error
	Type string
}

// Worker is the asynchronous storage worker.
type Worker struct {
	log     *zap.Logger
	backend storage.Backend
	metrics *Metrics

	in   chan Message
	out  chan Message
	done chan struct{}

	cancel context.CancelFunc
	block  atomic.Pointer[shm.Block]
	stop   sync.Once
}

// Spawn starts a worker goroutine. It announces itself with MsgLoaded and
// then waits for MsgInit.
func Spawn(ctx context.Context, backend storage.Backend, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		log:     log.Named("opfs"),
		backend: backend,
		metrics: newMetrics(),
		in:      make(chan Message, 1),
		out:     make(chan Message, 4),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go w.run(ctx)
	return w
}

// Post sends a message to the worker.
func (w *Worker) Post(m Message) {
	select {
	case w.in <- m:
	case <-w.done:
	}
}

// Messages delivers messages from the worker.
func (w *Worker) Messages() <-chan Message { return w.out }

// Done is closed when the worker exits.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Metrics returns the worker's metrics table.
func (w *Worker) Metrics() *Metrics { return w.metrics }

// Stop cancels the worker, wakes it and waits for it to exit. An op in
// flight completes first.
func (w *Worker) Stop() {
	w.stop.Do(func() {
		w.cancel()
		if b := w.block.Load(); b != nil {
			b.Control().Notify(shm.SlotWhichOp, 1)
		}
	})
	<-w.done
}

func (w *Worker) send(ctx context.Context, m Message) {
	select {
	case w.out <- m:
	case <-ctx.Done():
	}
}

func (w *Worker) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	w.send(ctx, Message{Type: MsgLoaded})
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-w.in:
			if m.Type != MsgInit {
				w.log.Warn("ignoring unexpected message", zap.String("type", m.Type))
				continue
			}
			st, err := w.init(m.Init)
			if err != nil {
				w.log.Error("init failed", zap.Error(err))
				w.send(ctx, Message{Type: MsgInitFailed, Err: err})
				continue
			}
			w.send(ctx, Message{Type: MsgInited})
			w.waitLoop(ctx, st)
			st.closeAll(ctx)
			return
		}
	}
}

type handlerEntry struct {
	fn      handler
	name    Op
	minArgs int
}

type state struct {
	log      *zap.Logger
	backend  storage.Backend
	ctl      *shm.ControlBlock
	fileBuf  []byte
	ser      *s11n.Serializer
	metrics  *Metrics
	codes    sqlite.Codes
	handlers map[int32]handlerEntry
	files    map[int64]*openFile
	interval time.Duration
}

func (w *Worker) init(opts *InitOptions) (*state, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	region, err := opts.Block.Region(opts.S11nOffset, opts.S11nSize)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "serialization region")
	}
	verbose := opts.Verbose
	if verbose < 0 {
		verbose = DefaultVerbose
	}

	st := &state{
		log:      LoggerForVerbosity(w.log, verbose),
		backend:  w.backend,
		ctl:      opts.Block.Control(),
		fileBuf:  opts.Block.IO()[:opts.FileBufferSize:opts.FileBufferSize],
		ser:      s11n.New(region, opts.LittleEndian),
		metrics:  w.metrics,
		codes:    opts.Codes,
		handlers: make(map[int32]handlerEntry, len(AllOps)),
		files:    make(map[int64]*openFile),
		interval: opts.MetricsInterval,
	}
	for _, op := range AllOps {
		impl := handlers[op]
		st.handlers[opts.OpIDs[string(op)]] = handlerEntry{fn: impl.fn, name: op, minArgs: impl.minArgs}
	}
	st.metrics.reset(AllOps, st.ser)
	w.block.Store(opts.Block)

	st.log.Debug("worker initialized",
		zap.Bool("little_endian", opts.LittleEndian),
		zap.Int("file_buffer", opts.FileBufferSize),
		zap.Int("s11n_offset", opts.S11nOffset),
		zap.Int("s11n_size", opts.S11nSize),
		zap.Strings("ops", OpNames(opts.OpIDs)))
	return st, nil
}

func (w *Worker) waitLoop(ctx context.Context, st *state) {
	lastDump := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		if st.ctl.Wait(shm.SlotWhichOp, 0, waitTimeout) == shm.WaitTimedOut {
			st.maybeDump(&lastDump)
			continue
		}
		opID := st.ctl.Load(shm.SlotWhichOp)
		if opID == 0 {
			continue
		}
		st.ctl.Store(shm.SlotWhichOp, 0)
		st.publish(st.dispatch(ctx, opID))
		st.maybeDump(&lastDump)
	}
}

// maybeDump logs the metrics when the dump interval has elapsed. It runs
// after idle waits and after each operation, so a busy loop still dumps.
func (st *state) maybeDump(last *time.Time) {
	if st.interval > 0 && time.Since(*last) >= st.interval {
		st.metrics.Dump(st.log)
		*last = time.Now()
	}
}

// dispatch runs one operation and returns its status. It never panics.
func (st *state) dispatch(ctx context.Context, opID int32) (rc sqlite.ResultCode) {
	entry, known := st.handlers[opID]
	args, err := st.ser.Deserialize()
	st.ser.Clear()

	defer func() {
		if r := recover(); r != nil {
			st.log.Error("operation panicked", zap.String("op", string(entry.name)), zap.Any("panic", r))
			st.ser.SerializeMessage(fmt.Sprintf("%s: %v", entry.name, r))
			rc = st.codes.IOErr
		}
	}()

	if !known {
		st.log.Warn("no handler for operation", zap.Int32("op_id", opID))
		return st.codes.NotFound
	}
	if err != nil {
		st.ser.SerializeMessage(err.Error())
		return st.codes.IOErr
	}
	if len(args) < entry.minArgs {
		st.ser.SerializeMessage(fmt.Sprintf("%s: expected %d arguments, got %d", entry.name, entry.minArgs, len(args)))
		return st.codes.IOErr
	}

	t := st.metrics.begin(string(entry.name))
	defer t.end()
	return entry.fn(ctx, st, t, args)
}

// publish stores the result code and wakes the caller. Called exactly
// once per operation.
func (st *state) publish(rc sqlite.ResultCode) {
	st.ctl.Add(shm.SlotSeq, 1)
	st.ctl.Store(shm.SlotRC, int32(rc))
	st.ctl.Notify(shm.SlotRC, 1)
}

// fail records a diagnostic for the caller and returns rc.
func (st *state) fail(op Op, rc sqlite.ResultCode, err error) sqlite.ResultCode {
	st.log.Debug("operation failed", zap.String("op", string(op)), zap.Stringer("rc", rc), zap.Error(err))
	st.ser.SerializeMessage(err.Error())
	return rc
}

// closeAll releases access handles left open at shutdown.
func (st *state) closeAll(ctx context.Context) {
	for fid, f := range st.files {
		delete(st.files, fid)
		f.close(ctx, st.log)
	}
}
