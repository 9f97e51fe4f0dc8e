// Package wasmsqlite bridges a WebAssembly build of an embedded SQL engine
// to a hierarchical file store through a synchronous VFS.
//
// The engine calls VFS methods synchronously. Storage access is
// asynchronous, so the two sides run on separate threads of control and
// talk through a block of shared memory: a control page of atomic slots
// and an I/O region holding the file data buffer and an argument
// serialization area.
//
// # Architecture Overview
//
//	wasmsqlite/          Root package with the guest Memory interface
//	├── vfs/             Synchronous side: VFS methods, file handles, utilities
//	├── opfs/            Asynchronous side: the storage worker and op handlers
//	├── shm/             Shared memory block, control slots, futex wait/notify
//	├── s11n/            Tagged argument codec over the serialization region
//	├── storage/         Backend interfaces with memfs and localfs stores
//	├── sqlite/          Result codes, open flags and the constant bundle
//	├── engine/          wazero host module exporting the VFS imports
//	├── resource/        Handle table for Go-level file handles
//	├── errors/          Structured error types
//	└── cmd/opfsctl/     Command line tool over the bridge utilities
//
// # Quick Start
//
//	backend, err := localfs.New("/var/lib/app")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	v, err := vfs.Install(ctx, backend, &vfs.Config{Logger: logger})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Close()
//
//	eng, err := engine.New(ctx, v, &engine.Config{MemoryLimitPages: 1024})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	mod, err := eng.Load(ctx, "sqlite", wasmBytes)
//
// # Operations
//
// Every VFS call becomes one round trip: the caller serializes arguments,
// stores the operation ID and sleeps on the result slot; the worker
// wakes, runs the handler against the backend and publishes a result
// code. Only one operation is in flight at a time.
package wasmsqlite
