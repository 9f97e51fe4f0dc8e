package opfs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/wasm-sqlite/s11n"
	"github.com/wippyai/wasm-sqlite/shm"
	"github.com/wippyai/wasm-sqlite/sqlite"
	"github.com/wippyai/wasm-sqlite/storage"
	"github.com/wippyai/wasm-sqlite/storage/memfs"
)

const (
	testFileBuffer = 4096
	testS11nSize   = 512
)

// harness plays the synchronous side of the handshake.
type harness struct {
	t       *testing.T
	w       *Worker
	block   *shm.Block
	ser     *s11n.Serializer
	ids     map[string]int32
	backend storage.Backend
}

func testOptions(block *shm.Block) InitOptions {
	return InitOptions{
		Block:          block,
		OpIDs:          DefaultOpIDs(),
		Codes:          sqlite.DefaultCodes(),
		LittleEndian:   true,
		Verbose:        3,
		FileBufferSize: testFileBuffer,
		S11nOffset:     testFileBuffer,
		S11nSize:       testS11nSize,
	}
}

func newBlock(t *testing.T) *shm.Block {
	t.Helper()
	block, err := shm.NewBlock(testFileBuffer, testS11nSize)
	require.NoError(t, err)
	return block
}

func spawn(t *testing.T, backend storage.Backend) *Worker {
	t.Helper()
	return spawnWith(t, backend, zaptest.NewLogger(t))
}

func spawnWith(t *testing.T, backend storage.Backend, log *zap.Logger) *Worker {
	t.Helper()
	w := Spawn(context.Background(), backend, log)
	msg := recv(t, w)
	require.Equal(t, MsgLoaded, msg.Type)
	return w
}

func recv(t *testing.T, w *Worker) Message {
	t.Helper()
	select {
	case m := <-w.Messages():
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker message")
	}
	return Message{}
}

func newHarness(t *testing.T, backend storage.Backend) *harness {
	t.Helper()
	return newHarnessWith(t, backend, zaptest.NewLogger(t), nil)
}

// newHarnessWith lets a test pick the worker logger and adjust the init
// options before they are posted.
func newHarnessWith(t *testing.T, backend storage.Backend, log *zap.Logger, mutate func(*InitOptions)) *harness {
	t.Helper()
	if backend == nil {
		backend = memfs.New()
	}
	block := newBlock(t)
	w := spawnWith(t, backend, log)

	opts := testOptions(block)
	if mutate != nil {
		mutate(&opts)
	}
	w.Post(Message{Type: MsgInit, Init: &opts})
	msg := recv(t, w)
	require.Equal(t, MsgInited, msg.Type, "init error: %v", msg.Err)

	region, err := block.Region(opts.S11nOffset, opts.S11nSize)
	require.NoError(t, err)

	t.Cleanup(func() {
		w.Stop()
		_ = block.Free()
	})
	return &harness{
		t:       t,
		w:       w,
		block:   block,
		ser:     s11n.New(region, true),
		ids:     opts.OpIDs,
		backend: backend,
	}
}

func (h *harness) call(op Op, args ...any) sqlite.ResultCode {
	h.t.Helper()
	id, ok := h.ids[string(op)]
	require.True(h.t, ok, "no ID for %s", op)
	return h.callID(id, args...)
}

func (h *harness) callID(id int32, args ...any) sqlite.ResultCode {
	h.t.Helper()
	ctl := h.block.Control()
	h.ser.SerializeArgs(args...)
	ctl.Store(shm.SlotRC, -1)
	ctl.Store(shm.SlotWhichOp, id)
	ctl.Notify(shm.SlotWhichOp, 1)

	deadline := time.Now().Add(5 * time.Second)
	for ctl.Load(shm.SlotRC) == -1 {
		require.True(h.t, time.Now().Before(deadline), "worker did not answer")
		ctl.Wait(shm.SlotRC, -1, time.Second)
	}
	return sqlite.ResultCode(ctl.Load(shm.SlotRC))
}

func (h *harness) payload() []s11n.Value {
	h.t.Helper()
	vals, err := h.ser.Deserialize()
	require.NoError(h.t, err)
	return vals
}

func (h *harness) message() string {
	h.t.Helper()
	vals := h.payload()
	if len(vals) == 0 {
		return ""
	}
	return vals[0].Str()
}

func (h *harness) fileBuf() []byte {
	return h.block.FileBuffer()
}
