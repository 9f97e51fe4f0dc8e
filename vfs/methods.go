package vfs

import (
	"crypto/rand"
	"time"

	"github.com/wippyai/wasm-sqlite/opfs"
	"github.com/wippyai/wasm-sqlite/s11n"
	"github.com/wippyai/wasm-sqlite/sqlite"
)

const (
	unixEpochJulianDay = 2440587.5
	msPerDay           = 86400000
)

// Access reports whether name exists. The backend cannot tell readable
// from writable, so flags are ignored.
func (v *VFS) Access(name string, _ sqlite.AccessFlag) (bool, sqlite.ResultCode) {
	return v.opRun(opfs.OpXAccess, s11n.String(name)) == v.cfg.Codes.OK, v.cfg.Codes.OK
}

// Delete removes name. A syncDir of sqlite.DeleteSyncDirMarker also
// removes the parent directories it leaves empty.
func (v *VFS) Delete(name string, syncDir int32) sqlite.ResultCode {
	return v.opRun(opfs.OpXDelete, s11n.String(name), s11n.Int(int64(syncDir)), s11n.Bool(false))
}

// Mkdir creates name and its missing parents.
func (v *VFS) Mkdir(name string) sqlite.ResultCode {
	return v.opRun(opfs.OpMkdir, s11n.String(name))
}

// FullPathname returns name unchanged; names are already absolute within
// the backend.
func (v *VFS) FullPathname(name string) (string, sqlite.ResultCode) {
	return name, v.cfg.Codes.OK
}

// Randomness fills p with random bytes and returns how many were written.
func (v *VFS) Randomness(p []byte) int {
	n, _ := rand.Read(p)
	return n
}

// Sleep blocks for micros microseconds and returns the amount slept.
func (v *VFS) Sleep(micros int32) int32 {
	if micros > 0 {
		time.Sleep(time.Duration(micros) * time.Microsecond)
	}
	return micros
}

// CurrentTime returns the current time as a Julian day number.
func (v *VFS) CurrentTime() float64 {
	return unixEpochJulianDay + float64(time.Now().UnixMilli())/msPerDay
}

// CurrentTimeInt64 returns the current time in Julian milliseconds.
func (v *VFS) CurrentTimeInt64() int64 {
	return int64(unixEpochJulianDay*msPerDay) + time.Now().UnixMilli()
}

// GetLastError returns the diagnostic of the most recent failed operation.
func (v *VFS) GetLastError() (sqlite.ResultCode, string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg.Codes.OK, v.lastErr
}
