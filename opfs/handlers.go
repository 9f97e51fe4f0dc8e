package opfs

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-sqlite/errors"
	"github.com/wippyai/wasm-sqlite/s11n"
	"github.com/wippyai/wasm-sqlite/sqlite"
	"github.com/wippyai/wasm-sqlite/storage"
)

type handler func(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode

var handlers = map[Op]struct {
	fn      handler
	minArgs int
}{
	OpMkdir:     {fn: mkdir, minArgs: 1},
	OpXAccess:   {fn: xAccess, minArgs: 1},
	OpXClose:    {fn: xClose, minArgs: 1},
	OpXDelete:   {fn: xDelete, minArgs: 1},
	OpXFileSize: {fn: xFileSize, minArgs: 1},
	OpXOpen:     {fn: xOpen, minArgs: 3},
	OpXRead:     {fn: xRead, minArgs: 3},
	OpXSync:     {fn: xSync, minArgs: 1},
	OpXTruncate: {fn: xTruncate, minArgs: 2},
	OpXWrite:    {fn: xWrite, minArgs: 3},
}

// mkdir(name) creates name and all its missing parents.
func mkdir(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	done := t.wait()
	_, err := storage.ResolveDir(ctx, st.backend, args[0].Str(), true)
	done()
	if err != nil {
		return st.fail(OpMkdir, st.codes.IOErr, err)
	}
	return st.codes.OK
}

// xAccess(name) succeeds when name resolves to a file.
func xAccess(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	done := t.wait()
	defer done()
	dir, leaf, err := storage.ResolvePath(ctx, st.backend, args[0].Str(), false)
	if err == nil {
		_, err = dir.GetFile(ctx, leaf, false)
	}
	if err != nil {
		return st.fail(OpXAccess, st.codes.IOErrAccess, err)
	}
	return st.codes.OK
}

// xClose(fid)
func xClose(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	fid := args[0].Int()
	f, ok := st.files[fid]
	if !ok {
		return st.codes.NotFound
	}
	delete(st.files, fid)
	done := t.wait()
	f.close(ctx, st.log)
	done()
	return st.codes.OK
}

// xDelete(name [, syncDir [, recursive]])
func xDelete(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	var syncDir int64
	var recursive bool
	if len(args) > 1 {
		syncDir = args[1].Int()
	}
	if len(args) > 2 {
		recursive = args[2].Bool()
	}
	done := t.wait()
	defer done()
	return st.deleteNoWait(ctx, args[0].Str(), syncDir, recursive)
}

// deleteNoWait removes name. With the sync-dir marker it then walks up,
// removing parents that are left empty, and stops quietly at the first
// parent that cannot be removed. Only the first removal can fail the call.
func (st *state) deleteNoWait(ctx context.Context, name string, syncDir int64, recursive bool) sqlite.ResultCode {
	parts := storage.SplitPath(name)
	first := true
	for len(parts) > 0 {
		p := strings.Join(parts, "/")
		dir, leaf, err := storage.ResolvePath(ctx, st.backend, p, false)
		if err == nil {
			err = dir.RemoveEntry(ctx, leaf, recursive && first)
		}
		if err != nil {
			if first {
				return st.fail(OpXDelete, st.codes.IOErrDelete, err)
			}
			st.log.Debug("stopping parent cleanup", zap.String("dir", p), zap.Error(err))
			break
		}
		if syncDir != sqlite.DeleteSyncDirMarker {
			break
		}
		first = false
		parts = parts[:len(parts)-1]
	}
	return st.codes.OK
}

// xFileSize(fid) returns the size as an int64 payload.
func xFileSize(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	f, err := st.file(args[0].Int())
	if err != nil {
		return st.fail(OpXFileSize, st.codes.IOErr, err)
	}
	done := t.wait()
	size, err := f.access.Size(ctx)
	done()
	if err != nil {
		return st.fail(OpXFileSize, st.codes.IOErr, err)
	}
	st.ser.Serialize(s11n.Int(size))
	return st.codes.OK
}

// xOpen(fid, name, flags)
func xOpen(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	fid, name, flags := args[0].Int(), args[1].Str(), sqlite.OpenFlag(args[2].Int())
	create := flags&st.codes.OpenCreate != 0
	rc := st.codes.OpenErr()

	if _, busy := st.files[fid]; busy {
		return st.fail(OpXOpen, rc, errors.New(errors.PhaseStorage, errors.KindInvalidInput).
			Op(string(OpXOpen)).Value(fid).Detail("file ID %d is already open", fid).Build())
	}

	done := t.wait()
	defer done()
	dir, leaf, err := storage.ResolvePath(ctx, st.backend, name, create)
	if err != nil {
		return st.fail(OpXOpen, rc, err)
	}
	file, err := dir.GetFile(ctx, leaf, create)
	if err != nil {
		return st.fail(OpXOpen, rc, err)
	}
	access, err := file.CreateAccessHandle(ctx)
	if err != nil {
		return st.fail(OpXOpen, rc, err)
	}
	st.files[fid] = &openFile{
		path:          name,
		leaf:          leaf,
		dir:           dir,
		file:          file,
		access:        access,
		readOnly:      !create && flags&st.codes.OpenReadOnly != 0,
		deleteOnClose: flags&st.codes.OpenDeleteClose != 0,
	}
	return st.codes.OK
}

// xRead(fid, n, offset) fills the file buffer [0,n).
func xRead(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	f, err := st.file(args[0].Int())
	if err != nil {
		return st.fail(OpXRead, st.codes.IOErrRead, err)
	}
	n, off := args[1].Int(), args[2].Int()
	if err := st.checkSpan(OpXRead, n, off); err != nil {
		return st.fail(OpXRead, st.codes.IOErrRead, err)
	}
	buf := st.fileBuf[:n]

	done := t.wait()
	nRead, err := f.access.ReadAt(ctx, buf, off)
	done()
	if err != nil {
		return st.fail(OpXRead, st.codes.IOErrRead, err)
	}
	if nRead < len(buf) {
		clear(buf[nRead:])
		return st.codes.IOErrShortRead
	}
	return st.codes.OK
}

// xSync(fid [, flags]) flushes writable handles. Flush failures are
// reported as a diagnostic only.
func xSync(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	f, ok := st.files[args[0].Int()]
	if !ok {
		return st.codes.NotFound
	}
	if f.readOnly || f.access == nil {
		return st.codes.OK
	}
	done := t.wait()
	err := f.access.Flush(ctx)
	done()
	if err != nil {
		st.log.Warn("flush failed", zap.String("path", f.path), zap.Error(err))
		st.ser.SerializeMessage(err.Error())
	}
	return st.codes.OK
}

// xTruncate(fid, size)
func xTruncate(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	f, err := st.writable(OpXTruncate, args[0].Int())
	if err != nil {
		return st.fail(OpXTruncate, st.codes.IOErrTruncate, err)
	}
	done := t.wait()
	err = f.access.Truncate(ctx, args[1].Int())
	done()
	if err != nil {
		return st.fail(OpXTruncate, st.codes.IOErrTruncate, err)
	}
	return st.codes.OK
}

// xWrite(fid, n, offset) writes the file buffer [0,n).
func xWrite(ctx context.Context, st *state, t opTimer, args []s11n.Value) sqlite.ResultCode {
	f, err := st.writable(OpXWrite, args[0].Int())
	if err != nil {
		return st.fail(OpXWrite, st.codes.IOErrWrite, err)
	}
	n, off := args[1].Int(), args[2].Int()
	if err := st.checkSpan(OpXWrite, n, off); err != nil {
		return st.fail(OpXWrite, st.codes.IOErrWrite, err)
	}

	done := t.wait()
	written, err := f.access.WriteAt(ctx, st.fileBuf[:n], off)
	done()
	if err != nil {
		return st.fail(OpXWrite, st.codes.IOErrWrite, err)
	}
	if int64(written) != n {
		return st.fail(OpXWrite, st.codes.IOErrWrite,
			fmt.Errorf("%s: wrote %d of %d bytes", f.path, written, n))
	}
	return st.codes.OK
}

func (st *state) file(fid int64) (*openFile, error) {
	f, ok := st.files[fid]
	if !ok || f.access == nil {
		return nil, errors.NotFound(errors.PhaseStorage, fmt.Sprintf("file ID %d", fid))
	}
	return f, nil
}

func (st *state) writable(op Op, fid int64) (*openFile, error) {
	f, err := st.file(fid)
	if err != nil {
		return nil, err
	}
	if f.readOnly {
		return nil, errors.New(errors.PhaseStorage, errors.KindPermission).
			Op(string(op)).
			Detail("file is read-only: %s", f.path).
			Build()
	}
	return f, nil
}

func (st *state) checkSpan(op Op, n, off int64) error {
	if n < 0 || n > int64(len(st.fileBuf)) || off < 0 {
		return errors.New(errors.PhaseStorage, errors.KindOutOfBounds).
			Op(string(op)).
			Detail("span of %d bytes at offset %d does not fit the %d-byte file buffer", n, off, len(st.fileBuf)).
			Build()
	}
	return nil
}
