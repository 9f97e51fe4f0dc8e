package vfs

import (
	"github.com/wippyai/wasm-sqlite/opfs"
	"github.com/wippyai/wasm-sqlite/s11n"
	"github.com/wippyai/wasm-sqlite/sqlite"
)

// Open opens name for fid.
func (v *VFS) Open(fid FileID, name string, flags sqlite.OpenFlag) sqlite.ResultCode {
	rc := v.opRun(opfs.OpXOpen, s11n.Int(int64(fid)), s11n.String(name), s11n.Int(int64(flags)))
	if rc == v.cfg.Codes.OK {
		v.mu.Lock()
		v.files[fid] = &fileState{name: name, flags: flags}
		v.mu.Unlock()
	}
	return rc
}

// CloseFile closes fid.
func (v *VFS) CloseFile(fid FileID) sqlite.ResultCode {
	v.mu.Lock()
	delete(v.files, fid)
	v.mu.Unlock()
	return v.opRun(opfs.OpXClose, s11n.Int(int64(fid)))
}

// Read fills p from offset off, in file-buffer sized chunks. A short read
// zero-fills the rest of p and returns IOERR_SHORT_READ.
func (v *VFS) Read(fid FileID, p []byte, off int64) sqlite.ResultCode {
	for done := 0; done < len(p); {
		n := min(len(p)-done, len(v.fileBuf))
		fill := func(rc sqlite.ResultCode) {
			switch rc {
			case v.cfg.Codes.OK:
				copy(p[done:], v.fileBuf[:n])
			case v.cfg.Codes.IOErrShortRead:
				copy(p[done:], v.fileBuf[:n])
				clear(p[done+n:])
			}
		}
		rc := v.opRunWith(opfs.OpXRead, nil, fill, s11n.Int(int64(fid)), s11n.Int(int64(n)), s11n.Int(off+int64(done)))
		if rc != v.cfg.Codes.OK {
			return rc
		}
		done += n
	}
	return v.cfg.Codes.OK
}

// Write writes p at offset off, in file-buffer sized chunks.
func (v *VFS) Write(fid FileID, p []byte, off int64) sqlite.ResultCode {
	for done := 0; done < len(p); {
		n := min(len(p)-done, len(v.fileBuf))
		stage := func() { copy(v.fileBuf, p[done:done+n]) }
		rc := v.opRunWith(opfs.OpXWrite, stage, nil, s11n.Int(int64(fid)), s11n.Int(int64(n)), s11n.Int(off+int64(done)))
		if rc != v.cfg.Codes.OK {
			return rc
		}
		done += n
	}
	return v.cfg.Codes.OK
}

// Truncate sets the file size.
func (v *VFS) Truncate(fid FileID, size int64) sqlite.ResultCode {
	return v.opRun(opfs.OpXTruncate, s11n.Int(int64(fid)), s11n.Int(size))
}

// Sync flushes the file.
func (v *VFS) Sync(fid FileID, flags sqlite.SyncFlag) sqlite.ResultCode {
	return v.opRun(opfs.OpXSync, s11n.Int(int64(fid)), s11n.Int(int64(flags)))
}

// FileSize returns the file size.
func (v *VFS) FileSize(fid FileID) (int64, sqlite.ResultCode) {
	var (
		size int64
		ok   bool
	)
	decode := func(rc sqlite.ResultCode) {
		if rc != v.cfg.Codes.OK {
			return
		}
		if vals, err := v.ser.Deserialize(); err == nil && len(vals) > 0 {
			size, ok = vals[0].Int(), true
		}
	}
	rc := v.opRunWith(opfs.OpXFileSize, nil, decode, s11n.Int(int64(fid)))
	if rc != v.cfg.Codes.OK {
		return 0, rc
	}
	if !ok {
		v.setLastError("xFileSize returned no size")
		return 0, v.cfg.Codes.IOErr
	}
	return size, rc
}

// Lock records the lock level. Access handles are already exclusive.
func (v *VFS) Lock(fid FileID, level sqlite.LockLevel) sqlite.ResultCode {
	return v.setLock(fid, level)
}

// Unlock records the lock level.
func (v *VFS) Unlock(fid FileID, level sqlite.LockLevel) sqlite.ResultCode {
	return v.setLock(fid, level)
}

func (v *VFS) setLock(fid FileID, level sqlite.LockLevel) sqlite.ResultCode {
	v.mu.Lock()
	defer v.mu.Unlock()
	if f := v.files[fid]; f != nil {
		f.lock = level
	}
	return v.cfg.Codes.OK
}

// LockLevel returns the recorded lock level.
func (v *VFS) LockLevel(fid FileID) sqlite.LockLevel {
	v.mu.Lock()
	defer v.mu.Unlock()
	if f := v.files[fid]; f != nil {
		return f.lock
	}
	return sqlite.LOCK_NONE
}

// CheckReservedLock always reports no reserved lock held elsewhere.
func (v *VFS) CheckReservedLock(FileID) (bool, sqlite.ResultCode) {
	return false, v.cfg.Codes.OK
}

// SectorSize returns the fixed sector size.
func (v *VFS) SectorSize(FileID) int32 {
	return SectorSize
}

// DeviceCharacteristics reports that open files cannot be deleted.
func (v *VFS) DeviceCharacteristics(FileID) sqlite.DeviceCharacteristic {
	return sqlite.IOCAP_UNDELETABLE_WHEN_OPEN
}

// FileControl implements no opcodes.
func (v *VFS) FileControl(FileID, int32) sqlite.ResultCode {
	return v.cfg.Codes.NotFound
}
