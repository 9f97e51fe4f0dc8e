package opfs

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/shm"
	"github.com/wippyai/wasm-sqlite/sqlite"
	"github.com/wippyai/wasm-sqlite/storage"
	"github.com/wippyai/wasm-sqlite/storage/memfs"
)

const rwCreate = int32(sqlite.OPEN_READWRITE | sqlite.OPEN_CREATE | sqlite.OPEN_MAIN_DB)

func TestReadWriteScenario(t *testing.T) {
	h := newHarness(t, nil)
	data := []byte("sqlite page data, not really")

	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(1), "/db/main.db", rwCreate))

	copy(h.fileBuf(), data)
	require.Equal(t, sqlite.OK, h.call(OpXWrite, int64(1), int64(len(data)), int64(0)))

	require.Equal(t, sqlite.OK, h.call(OpXFileSize, int64(1)))
	vals := h.payload()
	require.Len(t, vals, 1)
	assert.Equal(t, int64(len(data)), vals[0].Int())

	clear(h.fileBuf())
	require.Equal(t, sqlite.OK, h.call(OpXRead, int64(1), int64(len(data)), int64(0)))
	assert.Equal(t, data, h.fileBuf()[:len(data)])

	require.Equal(t, sqlite.OK, h.call(OpXSync, int64(1), int32(sqlite.SYNC_NORMAL)))
	require.Equal(t, sqlite.OK, h.call(OpXTruncate, int64(1), int64(6)))
	require.Equal(t, sqlite.OK, h.call(OpXFileSize, int64(1)))
	assert.Equal(t, int64(6), h.payload()[0].Int())

	require.Equal(t, sqlite.OK, h.call(OpXClose, int64(1)))
	assert.Equal(t, sqlite.NOTFOUND, h.call(OpXClose, int64(1)))
	assert.Empty(t, h.payload())
}

func TestShortReadZeroFills(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(2), "short.db", rwCreate))
	copy(h.fileBuf(), "abcd")
	require.Equal(t, sqlite.OK, h.call(OpXWrite, int64(2), int64(4), int64(0)))

	for i := range h.fileBuf()[:16] {
		h.fileBuf()[i] = 0xff
	}
	assert.Equal(t, sqlite.IOERR_SHORT_READ, h.call(OpXRead, int64(2), int64(16), int64(2)))
	assert.Equal(t, []byte("cd"), h.fileBuf()[:2])
	assert.Equal(t, make([]byte, 14), h.fileBuf()[2:16])

	assert.Equal(t, sqlite.IOERR_SHORT_READ, h.call(OpXRead, int64(2), int64(8), int64(1000)))
	assert.Equal(t, make([]byte, 8), h.fileBuf()[:8])
}

func TestReadOnlyReopen(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(3), "/ro.db", rwCreate))
	copy(h.fileBuf(), "hello")
	require.Equal(t, sqlite.OK, h.call(OpXWrite, int64(3), int64(5), int64(0)))
	require.Equal(t, sqlite.OK, h.call(OpXClose, int64(3)))

	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(3), "/ro.db", int32(sqlite.OPEN_READONLY)))

	copy(h.fileBuf(), "XXXXX")
	assert.Equal(t, sqlite.IOERR_WRITE, h.call(OpXWrite, int64(3), int64(5), int64(0)))
	assert.Contains(t, h.message(), "read-only")
	assert.Equal(t, sqlite.IOERR_TRUNCATE, h.call(OpXTruncate, int64(3), int64(0)))
	assert.Equal(t, sqlite.OK, h.call(OpXSync, int64(3)))

	require.Equal(t, sqlite.OK, h.call(OpXRead, int64(3), int64(5), int64(0)))
	assert.Equal(t, []byte("hello"), h.fileBuf()[:5])
	require.Equal(t, sqlite.OK, h.call(OpXClose, int64(3)))
}

func TestOpenFailures(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, sqlite.IOERR, h.call(OpXOpen, int64(4), "/nodir/x.db", int32(sqlite.OPEN_READWRITE)))
	assert.NotEmpty(t, h.message())

	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(4), "/x.db", rwCreate))
	assert.Equal(t, sqlite.IOERR, h.call(OpXOpen, int64(4), "/y.db", rwCreate), "fid reuse")
	assert.Equal(t, sqlite.IOERR, h.call(OpXOpen, int64(5), "/x.db", rwCreate), "second access handle")
}

func TestUnknownFileIDs(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, sqlite.IOERR_READ, h.call(OpXRead, int64(9), int64(1), int64(0)))
	assert.Equal(t, sqlite.IOERR_WRITE, h.call(OpXWrite, int64(9), int64(1), int64(0)))
	assert.Equal(t, sqlite.IOERR_TRUNCATE, h.call(OpXTruncate, int64(9), int64(0)))
	assert.Equal(t, sqlite.IOERR, h.call(OpXFileSize, int64(9)))
	assert.Equal(t, sqlite.NOTFOUND, h.call(OpXSync, int64(9)))
	assert.Equal(t, sqlite.NOTFOUND, h.call(OpXClose, int64(9)))
}

func TestSpanLargerThanBuffer(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(1), "big.db", rwCreate))
	assert.Equal(t, sqlite.IOERR_READ, h.call(OpXRead, int64(1), int64(testFileBuffer+1), int64(0)))
	assert.Equal(t, sqlite.IOERR_WRITE, h.call(OpXWrite, int64(1), int64(testFileBuffer+1), int64(0)))
	assert.Equal(t, sqlite.IOERR_WRITE, h.call(OpXWrite, int64(1), int64(1), int64(-1)))
}

func TestAccessAndMkdir(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, sqlite.IOERR_ACCESS, h.call(OpXAccess, "/a/b.db"))
	assert.NotEmpty(t, h.message())

	require.Equal(t, sqlite.OK, h.call(OpMkdir, "/a"))
	require.Equal(t, sqlite.OK, h.call(OpMkdir, "/a"))
	assert.Equal(t, sqlite.IOERR_ACCESS, h.call(OpXAccess, "/a"), "directories are not accessible files")

	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(1), "/a/b.db", rwCreate))
	require.Equal(t, sqlite.OK, h.call(OpXClose, int64(1)))
	assert.Equal(t, sqlite.OK, h.call(OpXAccess, "/a/b.db"))
}

func TestMkdirOverFile(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(1), "/f", rwCreate))
	assert.Equal(t, sqlite.IOERR, h.call(OpMkdir, "/f/sub"))
}

func TestDeleteOnClose(t *testing.T) {
	h := newHarness(t, nil)
	flags := rwCreate | int32(sqlite.OPEN_DELETEONCLOSE)
	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(1), "/tmp/journal", flags))
	assert.Equal(t, sqlite.OK, h.call(OpXAccess, "/tmp/journal"))
	require.Equal(t, sqlite.OK, h.call(OpXClose, int64(1)))
	assert.Equal(t, sqlite.IOERR_ACCESS, h.call(OpXAccess, "/tmp/journal"))
}

func TestDeleteWalksUpEmptyParents(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(1), "/a/b/c/x.db", rwCreate))
	require.Equal(t, sqlite.OK, h.call(OpXClose, int64(1)))
	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(2), "/a/keep.db", rwCreate))
	require.Equal(t, sqlite.OK, h.call(OpXClose, int64(2)))

	require.Equal(t, sqlite.OK, h.call(OpXDelete, "/a/b/c/x.db", int32(sqlite.DeleteSyncDirMarker), false))

	for _, p := range []string{"/a/b/c/x.db", "/a/b/c", "/a/b"} {
		ok, err := storage.Exists(ctx, h.backend, p)
		require.NoError(t, err)
		assert.False(t, ok, p)
	}
	ok, err := storage.Exists(ctx, h.backend, "/a/keep.db")
	require.NoError(t, err)
	assert.True(t, ok, "walk must stop at the first non-empty parent")
}

func TestDeleteWithoutMarkerKeepsParents(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(1), "/p/x.db", rwCreate))
	require.Equal(t, sqlite.OK, h.call(OpXClose, int64(1)))
	require.Equal(t, sqlite.OK, h.call(OpXDelete, "/p/x.db", int32(0), false))

	ok, err := storage.Exists(context.Background(), h.backend, "/p")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteFailures(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, sqlite.IOERR_DELETE, h.call(OpXDelete, "/missing.db"))
	assert.NotEmpty(t, h.message())

	require.Equal(t, sqlite.OK, h.call(OpMkdir, "/r/s"))
	assert.Equal(t, sqlite.IOERR_DELETE, h.call(OpXDelete, "/r", int32(0), false))
	assert.Equal(t, sqlite.OK, h.call(OpXDelete, "/r", int32(0), true))
	assert.Equal(t, sqlite.IOERR_DELETE, h.call(OpXDelete, "/r", int32(0), true))
}

func TestUnknownOpID(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, sqlite.NOTFOUND, h.callID(999))
	assert.Equal(t, sqlite.OK, h.call(OpMkdir, "/still-alive"))
}

func TestArgumentCountChecked(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, sqlite.IOERR, h.call(OpXRead, int64(1)))
	assert.Contains(t, h.message(), "expected 3 arguments")
}

func TestExactlyOnePublicationPerOp(t *testing.T) {
	h := newHarness(t, nil)
	ctl := h.block.Control()
	before := ctl.Load(shm.SlotSeq)

	const n = 25
	for i := 0; i < n; i++ {
		h.call(OpXAccess, "/nothing")
	}
	h.callID(12345)

	assert.Equal(t, before+n+1, ctl.Load(shm.SlotSeq))
	assert.Equal(t, int32(0), ctl.Load(shm.SlotWhichOp))
}

type panicBackend struct{}

func (panicBackend) Root(context.Context) (storage.Directory, error) {
	panic("backend exploded")
}

func TestHandlerPanicBecomesIOErr(t *testing.T) {
	h := newHarness(t, panicBackend{})
	assert.Equal(t, sqlite.IOERR, h.call(OpMkdir, "/x"))
	assert.Contains(t, h.message(), "backend exploded")
	assert.Equal(t, sqlite.NOTFOUND, h.call(OpXClose, int64(1)), "worker keeps serving")
}

func TestMetrics(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(1), "m.db", rwCreate))
	copy(h.fileBuf(), "x")
	require.Equal(t, sqlite.OK, h.call(OpXWrite, int64(1), int64(1), int64(0)))
	require.Equal(t, sqlite.OK, h.call(OpXWrite, int64(1), int64(1), int64(1)))

	snap := h.w.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.Ops["xOpen"].Count)
	assert.Equal(t, int64(2), snap.Ops["xWrite"].Count)
	assert.Equal(t, int64(0), snap.Ops["xRead"].Count)
	assert.GreaterOrEqual(t, snap.Ops["xWrite"].Time, snap.Ops["xWrite"].Wait)
	assert.GreaterOrEqual(t, snap.S11n.DeserializeCount, int64(3))
	assert.Len(t, snap.Ops, len(AllOps))
}

func TestMetricsDump(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := newMetrics()
	m.reset(AllOps, nil)
	m.begin("xRead").end()
	m.Dump(zap.New(core))

	entries := logs.FilterMessage("worker metrics").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Contains(t, fields, "xRead")
	assert.NotContains(t, fields, "xWrite")
	assert.Equal(t, int64(1), fields["total"])
}

func TestMetricsDumpedUnderLoad(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := newHarnessWith(t, nil, zap.New(core), func(o *InitOptions) {
		o.MetricsInterval = time.Millisecond
	})

	// Well inside the first idle timeout, so only a dump that follows an
	// operation can be observed.
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, sqlite.OK, h.call(OpMkdir, "/busy"))
	require.Eventually(t, func() bool {
		return logs.FilterMessage("worker metrics").Len() > 0
	}, waitTimeout/3, time.Millisecond)
}

func TestInitValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*InitOptions)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "missing op ID",
			mutate: func(o *InitOptions) { delete(o.OpIDs, "xSync") },
			check: func(t *testing.T, err error) {
				var missing *errors.MissingOpsError
				require.True(t, errors.As(err, &missing))
				assert.Equal(t, []string{"xSync"}, missing.Ops)
			},
		},
		{
			name:   "unknown op name",
			mutate: func(o *InitOptions) { o.OpIDs["xShmMap"] = 99 },
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "xShmMap")
			},
		},
		{
			name:   "duplicate IDs",
			mutate: func(o *InitOptions) { o.OpIDs["xRead"] = o.OpIDs["xWrite"] },
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "share ID")
			},
		},
		{
			name:   "zero code",
			mutate: func(o *InitOptions) { o.Codes.IOErrRead = 0 },
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "ioerr_read")
			},
		},
		{
			name:   "overlapping regions",
			mutate: func(o *InitOptions) { o.S11nOffset = 0 },
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, &errors.Error{Phase: errors.PhaseInit, Kind: errors.KindInvalidInput}))
			},
		},
		{
			name:   "no block",
			mutate: func(o *InitOptions) { o.Block = nil },
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "shared block")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := newBlock(t)
			defer block.Free()
			w := spawn(t, memfs.New())
			defer w.Stop()

			opts := testOptions(block)
			tt.mutate(&opts)
			w.Post(Message{Type: MsgInit, Init: &opts})
			msg := recv(t, w)
			require.Equal(t, MsgInitFailed, msg.Type)
			require.Error(t, msg.Err)
			tt.check(t, msg.Err)
		})
	}
}

func TestStopBeforeInit(t *testing.T) {
	w := spawn(t, memfs.New())
	w.Stop()
	select {
	case <-w.Done():
	default:
		t.Fatal("worker still running")
	}
}

func TestStopClosesOpenFiles(t *testing.T) {
	backend := memfs.New()
	h := newHarness(t, backend)
	require.Equal(t, sqlite.OK, h.call(OpXOpen, int64(1), "/held.db", rwCreate))

	start := time.Now()
	h.w.Stop()
	assert.Less(t, time.Since(start), 2*time.Second)

	ctx := context.Background()
	root, err := backend.Root(ctx)
	require.NoError(t, err)
	f, err := root.GetFile(ctx, "held.db", false)
	require.NoError(t, err)
	ah, err := f.CreateAccessHandle(ctx)
	require.NoError(t, err, "access handle released at shutdown")
	require.NoError(t, ah.Close())
}

func TestLoggerForVerbosity(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	LoggerForVerbosity(base, 0).Error("silent")
	LoggerForVerbosity(base, 1).Warn("dropped")
	LoggerForVerbosity(base, 1).Error("kept-1")
	LoggerForVerbosity(base, 2).Warn("kept-2")
	LoggerForVerbosity(base, 2).Info("dropped")
	LoggerForVerbosity(base, 3).Debug("kept-3")

	var got bytes.Buffer
	for _, e := range logs.All() {
		got.WriteString(e.Message + " ")
	}
	assert.Equal(t, "kept-1 kept-2 kept-3 ", got.String())
}

func TestDefaultOpIDs(t *testing.T) {
	ids := DefaultOpIDs()
	assert.Len(t, ids, len(AllOps))
	assert.Equal(t, int32(1), ids["mkdir"])
	names := OpNames(ids)
	assert.Equal(t, "mkdir", names[0])
	assert.Equal(t, "xWrite", names[len(names)-1])
}
