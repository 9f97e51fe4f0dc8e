package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmsqlite "github.com/wippyai/wasm-sqlite"
	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/sqlite"
	"github.com/wippyai/wasm-sqlite/vfs"
)

// HostModuleName is the import module the engine build links against.
const HostModuleName = "opfs"

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// hostFunc is one exported import.
type hostFunc struct {
	name    string
	fn      api.GoModuleFunc
	params  []api.ValueType
	results []api.ValueType
	names   []string
}

// Host exports the VFS to the guest. File IDs are the guest's file-object
// pointers; strings are NUL-terminated.
type Host struct {
	vfs   *vfs.VFS
	codes sqlite.Codes
	log   *zap.Logger
}

// NewHost creates the host bindings for v.
func NewHost(v *vfs.VFS, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{vfs: v, codes: v.Codes(), log: log}
}

// Instantiate registers the host module in r.
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	b := r.NewHostModuleBuilder(HostModuleName)
	for _, f := range h.functions() {
		b = b.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			WithParameterNames(f.names...).
			Export(f.name)
	}
	mod, err := b.Instantiate(ctx)
	if err != nil {
		return nil, errors.New(errors.PhaseHost, errors.KindRegistration).
			Op("instantiate").
			Value(HostModuleName).
			Cause(err).
			Detail("host module %s", HostModuleName).
			Build()
	}
	return mod, nil
}

func (h *Host) functions() []hostFunc {
	return []hostFunc{
		{"xOpen", h.xOpen, []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}, []string{"fid", "name", "flags", "out_flags"}},
		{"xClose", h.xClose, []api.ValueType{i32}, []api.ValueType{i32}, []string{"fid"}},
		{"xRead", h.xRead, []api.ValueType{i32, i32, i32, i64}, []api.ValueType{i32}, []string{"fid", "dst", "n", "offset"}},
		{"xWrite", h.xWrite, []api.ValueType{i32, i32, i32, i64}, []api.ValueType{i32}, []string{"fid", "src", "n", "offset"}},
		{"xTruncate", h.xTruncate, []api.ValueType{i32, i64}, []api.ValueType{i32}, []string{"fid", "size"}},
		{"xSync", h.xSync, []api.ValueType{i32, i32}, []api.ValueType{i32}, []string{"fid", "flags"}},
		{"xFileSize", h.xFileSize, []api.ValueType{i32, i32}, []api.ValueType{i32}, []string{"fid", "out_size"}},
		{"xLock", h.xLock, []api.ValueType{i32, i32}, []api.ValueType{i32}, []string{"fid", "level"}},
		{"xUnlock", h.xUnlock, []api.ValueType{i32, i32}, []api.ValueType{i32}, []string{"fid", "level"}},
		{"xCheckReservedLock", h.xCheckReservedLock, []api.ValueType{i32, i32}, []api.ValueType{i32}, []string{"fid", "out"}},
		{"xFileControl", h.xFileControl, []api.ValueType{i32, i32, i32}, []api.ValueType{i32}, []string{"fid", "op", "arg"}},
		{"xSectorSize", h.xSectorSize, []api.ValueType{i32}, []api.ValueType{i32}, []string{"fid"}},
		{"xDeviceCharacteristics", h.xDeviceCharacteristics, []api.ValueType{i32}, []api.ValueType{i32}, []string{"fid"}},
		{"xAccess", h.xAccess, []api.ValueType{i32, i32, i32}, []api.ValueType{i32}, []string{"name", "flags", "out"}},
		{"xDelete", h.xDelete, []api.ValueType{i32, i32}, []api.ValueType{i32}, []string{"name", "sync_dir"}},
		{"xFullPathname", h.xFullPathname, []api.ValueType{i32, i32, i32}, []api.ValueType{i32}, []string{"name", "n", "out"}},
		{"xRandomness", h.xRandomness, []api.ValueType{i32, i32}, []api.ValueType{i32}, []string{"n", "out"}},
		{"xSleep", h.xSleep, []api.ValueType{i32}, []api.ValueType{i32}, []string{"micros"}},
		{"xCurrentTime", h.xCurrentTime, []api.ValueType{i32}, []api.ValueType{i32}, []string{"out"}},
		{"xCurrentTimeInt64", h.xCurrentTimeInt64, []api.ValueType{i32}, []api.ValueType{i32}, []string{"out"}},
		{"xGetLastError", h.xGetLastError, []api.ValueType{i32, i32}, []api.ValueType{i32}, []string{"n", "out"}},
	}
}

func fid(v uint64) vfs.FileID { return vfs.FileID(api.DecodeU32(v)) }

func ret(stack []uint64, rc sqlite.ResultCode) { stack[0] = api.EncodeI32(int32(rc)) }

// guest returns the calling module's memory. Load rejects modules without
// one, so the result is never nil here.
func guest(mod api.Module) wasmsqlite.Memory { return WrapMemory(mod.Memory()) }

// memFault logs a bad guest pointer and returns the generic I/O code.
func (h *Host) memFault(op string, err error) sqlite.ResultCode {
	h.log.Warn("guest memory fault", zap.String("op", op), zap.Error(err))
	return h.codes.IOErr
}

func (h *Host) xOpen(_ context.Context, mod api.Module, stack []uint64) {
	mem := guest(mod)
	name, err := ReadCString(mem, api.DecodeU32(stack[1]))
	if err != nil {
		ret(stack, h.memFault("xOpen", err))
		return
	}
	flags := sqlite.OpenFlag(api.DecodeI32(stack[2]))
	rc := h.vfs.Open(fid(stack[0]), name, flags)
	if out := api.DecodeU32(stack[3]); rc == h.codes.OK && out != 0 {
		if err := mem.WriteU32(out, uint32(flags)); err != nil {
			rc = h.memFault("xOpen", err)
		}
	}
	ret(stack, rc)
}

func (h *Host) xClose(_ context.Context, _ api.Module, stack []uint64) {
	ret(stack, h.vfs.CloseFile(fid(stack[0])))
}

func (h *Host) xRead(_ context.Context, mod api.Module, stack []uint64) {
	dst, err := guest(mod).Read(api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if err != nil {
		ret(stack, h.memFault("xRead", err))
		return
	}
	ret(stack, h.vfs.Read(fid(stack[0]), dst, int64(stack[3])))
}

func (h *Host) xWrite(_ context.Context, mod api.Module, stack []uint64) {
	src, err := guest(mod).Read(api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if err != nil {
		ret(stack, h.memFault("xWrite", err))
		return
	}
	ret(stack, h.vfs.Write(fid(stack[0]), src, int64(stack[3])))
}

func (h *Host) xTruncate(_ context.Context, _ api.Module, stack []uint64) {
	ret(stack, h.vfs.Truncate(fid(stack[0]), int64(stack[1])))
}

func (h *Host) xSync(_ context.Context, _ api.Module, stack []uint64) {
	ret(stack, h.vfs.Sync(fid(stack[0]), sqlite.SyncFlag(api.DecodeI32(stack[1]))))
}

func (h *Host) xFileSize(_ context.Context, mod api.Module, stack []uint64) {
	size, rc := h.vfs.FileSize(fid(stack[0]))
	if rc == h.codes.OK {
		if err := guest(mod).WriteU64(api.DecodeU32(stack[1]), uint64(size)); err != nil {
			rc = h.memFault("xFileSize", err)
		}
	}
	ret(stack, rc)
}

func (h *Host) xLock(_ context.Context, _ api.Module, stack []uint64) {
	ret(stack, h.vfs.Lock(fid(stack[0]), sqlite.LockLevel(api.DecodeI32(stack[1]))))
}

func (h *Host) xUnlock(_ context.Context, _ api.Module, stack []uint64) {
	ret(stack, h.vfs.Unlock(fid(stack[0]), sqlite.LockLevel(api.DecodeI32(stack[1]))))
}

func (h *Host) xCheckReservedLock(_ context.Context, mod api.Module, stack []uint64) {
	held, rc := h.vfs.CheckReservedLock(fid(stack[0]))
	var out uint32
	if held {
		out = 1
	}
	if err := guest(mod).WriteU32(api.DecodeU32(stack[1]), out); err != nil {
		rc = h.memFault("xCheckReservedLock", err)
	}
	ret(stack, rc)
}

func (h *Host) xFileControl(_ context.Context, _ api.Module, stack []uint64) {
	ret(stack, h.vfs.FileControl(fid(stack[0]), api.DecodeI32(stack[1])))
}

func (h *Host) xSectorSize(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeI32(h.vfs.SectorSize(fid(stack[0])))
}

func (h *Host) xDeviceCharacteristics(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeI32(int32(h.vfs.DeviceCharacteristics(fid(stack[0]))))
}

func (h *Host) xAccess(_ context.Context, mod api.Module, stack []uint64) {
	mem := guest(mod)
	name, err := ReadCString(mem, api.DecodeU32(stack[0]))
	if err != nil {
		ret(stack, h.memFault("xAccess", err))
		return
	}
	exists, rc := h.vfs.Access(name, sqlite.AccessFlag(api.DecodeI32(stack[1])))
	var out uint32
	if exists {
		out = 1
	}
	if err := mem.WriteU32(api.DecodeU32(stack[2]), out); err != nil {
		rc = h.memFault("xAccess", err)
	}
	ret(stack, rc)
}

func (h *Host) xDelete(_ context.Context, mod api.Module, stack []uint64) {
	name, err := ReadCString(guest(mod), api.DecodeU32(stack[0]))
	if err != nil {
		ret(stack, h.memFault("xDelete", err))
		return
	}
	ret(stack, h.vfs.Delete(name, api.DecodeI32(stack[1])))
}

func (h *Host) xFullPathname(_ context.Context, mod api.Module, stack []uint64) {
	mem := guest(mod)
	name, err := ReadCString(mem, api.DecodeU32(stack[0]))
	if err != nil {
		ret(stack, h.memFault("xFullPathname", err))
		return
	}
	full, rc := h.vfs.FullPathname(name)
	if rc != h.codes.OK {
		ret(stack, rc)
		return
	}
	fit, err := WriteCString(mem, api.DecodeU32(stack[2]), api.DecodeU32(stack[1]), full)
	switch {
	case err != nil:
		rc = h.memFault("xFullPathname", err)
	case !fit:
		rc = sqlite.CANTOPEN
	}
	ret(stack, rc)
}

func (h *Host) xRandomness(_ context.Context, mod api.Module, stack []uint64) {
	out, err := guest(mod).Read(api.DecodeU32(stack[1]), api.DecodeU32(stack[0]))
	if err != nil {
		h.memFault("xRandomness", err)
		stack[0] = 0
		return
	}
	stack[0] = api.EncodeI32(int32(h.vfs.Randomness(out)))
}

func (h *Host) xSleep(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = api.EncodeI32(h.vfs.Sleep(api.DecodeI32(stack[0])))
}

func (h *Host) xCurrentTime(_ context.Context, mod api.Module, stack []uint64) {
	rc := h.codes.OK
	if err := guest(mod).WriteF64(api.DecodeU32(stack[0]), h.vfs.CurrentTime()); err != nil {
		rc = h.memFault("xCurrentTime", err)
	}
	ret(stack, rc)
}

func (h *Host) xCurrentTimeInt64(_ context.Context, mod api.Module, stack []uint64) {
	rc := h.codes.OK
	if err := guest(mod).WriteU64(api.DecodeU32(stack[0]), uint64(h.vfs.CurrentTimeInt64())); err != nil {
		rc = h.memFault("xCurrentTimeInt64", err)
	}
	ret(stack, rc)
}

func (h *Host) xGetLastError(_ context.Context, mod api.Module, stack []uint64) {
	rc, msg := h.vfs.GetLastError()
	if _, err := WriteCString(guest(mod), api.DecodeU32(stack[1]), api.DecodeU32(stack[0]), msg); err != nil {
		rc = h.memFault("xGetLastError", err)
	}
	ret(stack, rc)
}
