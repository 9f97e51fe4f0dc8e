// Package engine hosts the WebAssembly build of the SQL engine on wazero.
//
// The engine build imports its VFS from the "opfs" module. Host exports
// the imports over a *vfs.VFS:
//
//	xOpen(fid, name, flags, out_flags) -> rc
//	xClose(fid) -> rc
//	xRead(fid, dst, n, offset i64) -> rc
//	xWrite(fid, src, n, offset i64) -> rc
//	xTruncate(fid, size i64) -> rc
//	xSync(fid, flags) -> rc
//	xFileSize(fid, out_size) -> rc
//	xLock(fid, level) / xUnlock(fid, level) -> rc
//	xCheckReservedLock(fid, out) -> rc
//	xFileControl(fid, op, arg) -> rc
//	xSectorSize(fid) -> size
//	xDeviceCharacteristics(fid) -> flags
//	xAccess(name, flags, out) -> rc
//	xDelete(name, sync_dir) -> rc
//	xFullPathname(name, n, out) -> rc
//	xRandomness(n, out) -> written
//	xSleep(micros) -> micros
//	xCurrentTime(out) / xCurrentTimeInt64(out) -> rc
//	xGetLastError(n, out) -> rc
//
// All pointers are 32-bit guest offsets and strings are NUL-terminated.
// fid is the guest's file-object pointer. A bad pointer is logged and
// reported as IOERR.
//
// Host functions run on the goroutine that called into the guest and
// block it for the duration of the storage round trip. One Engine serves
// one VFS; calls into its modules must not overlap.
package engine
