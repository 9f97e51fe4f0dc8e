package engine

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap/zaptest"

	wasmsqlite "github.com/wippyai/wasm-sqlite"
	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/sqlite"
	"github.com/wippyai/wasm-sqlite/storage/memfs"
	"github.com/wippyai/wasm-sqlite/vfs"
)

// memoryWASM is a minimal WASM module with 1 page of memory exported as "memory"
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // name: "memory" (6 bytes + string)
	0x02, 0x00, // kind: memory, index 0
}

// emptyWASM has no sections at all.
var emptyWASM = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

type fixture struct {
	t   *testing.T
	ctx context.Context
	vfs *vfs.VFS
	eng *Engine
	mod api.Module
	mem *Memory
}

func newFixture(t *testing.T, cfg *Config) *fixture {
	t.Helper()
	ctx := context.Background()
	v, err := vfs.Install(ctx, memfs.New(), &vfs.Config{Logger: zaptest.NewLogger(t)})
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	t.Cleanup(func() { _ = v.Close() })

	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Logger = zaptest.NewLogger(t)
	eng, err := New(ctx, v, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(ctx) })

	mod, err := eng.Load(ctx, "guest", memoryWASM)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return &fixture{t: t, ctx: ctx, vfs: v, eng: eng, mod: mod, mem: WrapMemory(mod.Memory())}
}

// call invokes a host import the way the guest would.
func (f *fixture) call(fn api.GoModuleFunc, args ...uint64) uint64 {
	stack := make([]uint64, max(len(args), 1))
	copy(stack, args)
	fn(f.ctx, f.mod, stack)
	return stack[0]
}

func (f *fixture) rc(fn api.GoModuleFunc, args ...uint64) sqlite.ResultCode {
	return sqlite.ResultCode(api.DecodeI32(f.call(fn, args...)))
}

func (f *fixture) cstr(off uint32, s string) uint64 {
	f.t.Helper()
	if err := f.mem.Write(off, append([]byte(s), 0)); err != nil {
		f.t.Fatalf("write string: %v", err)
	}
	return uint64(off)
}

func TestNew(t *testing.T) {
	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{StartFunctions: []string{}}, "no start functions"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.cfg)
			if f.eng.Runtime() == nil {
				t.Error("engine runtime should not be nil")
			}
			if f.eng.Module("guest") == nil {
				t.Error("guest module should be registered")
			}
		})
	}
}

func TestHostModuleExports(t *testing.T) {
	f := newFixture(t, nil)
	host := f.eng.Runtime().Module(HostModuleName)
	if host == nil {
		t.Fatal("host module not instantiated")
	}
	defs := host.ExportedFunctionDefinitions()
	for _, name := range []string{
		"xOpen", "xClose", "xRead", "xWrite", "xTruncate", "xSync", "xFileSize",
		"xLock", "xUnlock", "xCheckReservedLock", "xFileControl", "xSectorSize",
		"xDeviceCharacteristics", "xAccess", "xDelete", "xFullPathname",
		"xRandomness", "xSleep", "xCurrentTime", "xCurrentTimeInt64", "xGetLastError",
	} {
		if _, ok := defs[name]; !ok {
			t.Errorf("missing export %s", name)
		}
	}
	if f.eng.Runtime().Module("wasi_snapshot_preview1") == nil {
		t.Error("WASI preview1 not instantiated")
	}
}

func TestLoadErrors(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.eng.Load(f.ctx, "junk", []byte("not wasm"))
	if err == nil {
		t.Fatal("expected compile error")
	}
	if !errors.Is(err, errors.New(errors.PhaseLoad, errors.KindInvalidData).Build()) {
		t.Errorf("unexpected error: %v", err)
	}

	_, err = f.eng.Load(f.ctx, "bare", emptyWASM)
	if !errors.Is(err, errors.Unsupported(errors.PhaseLoad, "")) {
		t.Errorf("expected unsupported error for module without memory, got %v", err)
	}
}

func TestFileImports(t *testing.T) {
	f := newFixture(t, nil)
	h := f.eng.Host()
	const fid = 0x1000
	name := f.cstr(64, "/guest/main.db")
	flags := uint64(sqlite.OPEN_READWRITE | sqlite.OPEN_CREATE | sqlite.OPEN_MAIN_DB)

	if rc := f.rc(h.xOpen, fid, name, flags, 128); rc != sqlite.OK {
		t.Fatalf("xOpen: %v", rc)
	}
	if got, _ := f.mem.ReadU32(128); got != uint32(flags) {
		t.Errorf("out flags = %#x, want %#x", got, flags)
	}

	page := []byte(strings.Repeat("p", 512))
	if err := f.mem.Write(4096, page); err != nil {
		t.Fatal(err)
	}
	if rc := f.rc(h.xWrite, fid, 4096, uint64(len(page)), 0); rc != sqlite.OK {
		t.Fatalf("xWrite: %v", rc)
	}
	if rc := f.rc(h.xFileSize, fid, 256); rc != sqlite.OK {
		t.Fatalf("xFileSize: %v", rc)
	}
	if size, _ := f.mem.ReadU64(256); size != uint64(len(page)) {
		t.Errorf("size = %d, want %d", size, len(page))
	}

	if rc := f.rc(h.xRead, fid, 8192, 100, 500); rc != sqlite.IOERR_SHORT_READ {
		t.Errorf("xRead past end: %v", rc)
	}
	got, _ := f.mem.Read(8192, 100)
	if string(got[:12]) != strings.Repeat("p", 12) || got[12] != 0 || got[99] != 0 {
		t.Errorf("short read not zero-filled: %q", got)
	}

	if rc := f.rc(h.xLock, fid, uint64(sqlite.LOCK_EXCLUSIVE)); rc != sqlite.OK {
		t.Errorf("xLock: %v", rc)
	}
	if rc := f.rc(h.xCheckReservedLock, fid, 300); rc != sqlite.OK {
		t.Errorf("xCheckReservedLock: %v", rc)
	}
	if held, _ := f.mem.ReadU32(300); held != 0 {
		t.Error("reserved lock reported held")
	}
	if rc := f.rc(h.xUnlock, fid, uint64(sqlite.LOCK_NONE)); rc != sqlite.OK {
		t.Errorf("xUnlock: %v", rc)
	}
	if n := api.DecodeI32(f.call(h.xSectorSize, fid)); n != vfs.SectorSize {
		t.Errorf("sector size = %d", n)
	}
	if c := api.DecodeI32(f.call(h.xDeviceCharacteristics, fid)); c != int32(sqlite.IOCAP_UNDELETABLE_WHEN_OPEN) {
		t.Errorf("device characteristics = %#x", c)
	}
	if rc := f.rc(h.xFileControl, fid, 14, 0); rc != sqlite.NOTFOUND {
		t.Errorf("xFileControl: %v", rc)
	}
	if rc := f.rc(h.xTruncate, fid, 10); rc != sqlite.OK {
		t.Errorf("xTruncate: %v", rc)
	}
	if rc := f.rc(h.xSync, fid, uint64(sqlite.SYNC_NORMAL)); rc != sqlite.OK {
		t.Errorf("xSync: %v", rc)
	}
	if rc := f.rc(h.xClose, fid); rc != sqlite.OK {
		t.Errorf("xClose: %v", rc)
	}

	if rc := f.rc(h.xAccess, name, uint64(sqlite.ACCESS_EXISTS), 400); rc != sqlite.OK {
		t.Errorf("xAccess: %v", rc)
	}
	if exists, _ := f.mem.ReadU32(400); exists != 1 {
		t.Error("xAccess did not find the file")
	}
	if rc := f.rc(h.xDelete, name, sqlite.DeleteSyncDirMarker); rc != sqlite.OK {
		t.Errorf("xDelete: %v", rc)
	}
	ok, err := f.vfs.EntryExists(f.ctx, "/guest")
	if err != nil || ok {
		t.Errorf("parent directory left behind: ok=%v err=%v", ok, err)
	}
}

func TestErrorImports(t *testing.T) {
	f := newFixture(t, nil)
	h := f.eng.Host()

	missing := f.cstr(64, "/missing.db")
	if rc := f.rc(h.xOpen, 1, missing, uint64(sqlite.OPEN_READONLY), 0); rc == sqlite.OK {
		t.Fatal("opening a missing file succeeded")
	}
	if rc := f.rc(h.xGetLastError, 256, 512); rc != sqlite.OK {
		t.Errorf("xGetLastError: %v", rc)
	}
	msg, err := ReadCString(f.mem, 512)
	if err != nil || !strings.Contains(msg, "missing.db") {
		t.Errorf("last error = %q (%v)", msg, err)
	}

	if rc := f.rc(h.xGetLastError, 4, 512); rc != sqlite.OK {
		t.Errorf("xGetLastError: %v", rc)
	}
	if short, _ := ReadCString(f.mem, 512); len(short) != 3 {
		t.Errorf("truncated message = %q", short)
	}

	size := f.mem.Size()
	if rc := f.rc(h.xRead, 1, uint64(size-4), 64, 0); rc != sqlite.IOERR {
		t.Errorf("out of bounds xRead: %v", rc)
	}
	if rc := f.rc(h.xDelete, uint64(size+10), 0); rc != sqlite.IOERR {
		t.Errorf("out of bounds name: %v", rc)
	}
}

func TestPathAndTimeImports(t *testing.T) {
	f := newFixture(t, nil)
	h := f.eng.Host()

	name := f.cstr(64, "/a/b.db")
	if rc := f.rc(h.xFullPathname, name, 64, 256); rc != sqlite.OK {
		t.Errorf("xFullPathname: %v", rc)
	}
	if full, _ := ReadCString(f.mem, 256); full != "/a/b.db" {
		t.Errorf("full path = %q", full)
	}
	if rc := f.rc(h.xFullPathname, name, 4, 256); rc != sqlite.CANTOPEN {
		t.Errorf("xFullPathname into short buffer: %v", rc)
	}

	if n := api.DecodeI32(f.call(h.xRandomness, 16, 1024)); n != 16 {
		t.Errorf("xRandomness wrote %d bytes", n)
	}
	if n := api.DecodeI32(f.call(h.xSleep, 100)); n != 100 {
		t.Errorf("xSleep = %d", n)
	}

	if rc := f.rc(h.xCurrentTime, 2048); rc != sqlite.OK {
		t.Errorf("xCurrentTime: %v", rc)
	}
	bits, _ := f.mem.ReadU64(2048)
	if day := math.Float64frombits(bits); day < 2451544.5 {
		t.Errorf("julian day = %f", day)
	}
	if rc := f.rc(h.xCurrentTimeInt64, 2056); rc != sqlite.OK {
		t.Errorf("xCurrentTimeInt64: %v", rc)
	}
	if ms, _ := f.mem.ReadU64(2056); ms < 2451544.5*86400000 {
		t.Errorf("julian ms = %d", ms)
	}
}

func TestMemoryCString(t *testing.T) {
	f := newFixture(t, nil)

	if _, err := ReadCString(f.mem, f.mem.Size()); err == nil {
		t.Error("expected error reading past memory")
	}
	fit, err := WriteCString(f.mem, 0, 0, "")
	if err != nil || !fit {
		t.Errorf("empty string into empty buffer: fit=%v err=%v", fit, err)
	}
	fit, err = WriteCString(f.mem, 10, 6, "hello world")
	if err != nil || fit {
		t.Errorf("expected truncation: fit=%v err=%v", fit, err)
	}
	if s, _ := ReadCString(f.mem, 10); s != "hello" {
		t.Errorf("truncated = %q", s)
	}
	if WrapMemory(nil) != nil {
		t.Error("expected nil for nil memory")
	}
	if err := f.mem.WriteF64(f.mem.Size()-4, 1.5); err == nil {
		t.Error("expected out of bounds error")
	}
}

func TestCStringWithoutSizer(t *testing.T) {
	f := newFixture(t, nil)
	// Embedding the interface hides Size, forcing the byte-wise path.
	unsized := struct{ wasmsqlite.Memory }{f.mem}
	if _, ok := any(unsized).(wasmsqlite.MemorySizer); ok {
		t.Fatal("wrapper still reports its size")
	}

	if _, err := WriteCString(unsized, 100, 32, "/plain/path.db"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if s, err := ReadCString(unsized, 100); err != nil || s != "/plain/path.db" {
		t.Errorf("read = %q (%v)", s, err)
	}

	end := f.mem.Size()
	if err := f.mem.Write(end-3, []byte("abc")); err != nil {
		t.Fatalf("write tail: %v", err)
	}
	_, err := ReadCString(unsized, end-3)
	if !errors.Is(err, errors.New(errors.PhaseHost, errors.KindInvalidData).Build()) {
		t.Errorf("unterminated tail: %v", err)
	}
	if _, err := ReadCString(unsized, end); err == nil {
		t.Error("expected error reading past memory")
	}
}
