// Package vfs is the synchronous half of the storage bridge.
//
// Install allocates the shared memory, starts an opfs.Worker on its own
// thread and completes the init handshake. Each file-operation method then
// serializes its arguments, posts the operation ID and blocks the calling
// thread until the worker publishes the result code:
//
//	v, err := vfs.Install(ctx, memfs.New(), nil)
//	if err != nil {
//		return err
//	}
//	defer v.Close()
//
//	rc := v.Open(fid, "/db/main.db", sqlite.OPEN_READWRITE|sqlite.OPEN_CREATE)
//
// At most one operation may be in flight. The raw methods panic when called
// concurrently; the Go-level helpers (OpenFile, EntryExists, Unlink and the
// rest) serialize themselves.
package vfs
