// Package opfs is the asynchronous half of the storage bridge.
//
// A Worker runs on its own locked OS thread. After the init handshake it
// waits on the whichOp slot of the shared control block, decodes the
// arguments from the serialization region, runs the matching file
// operation against a storage.Backend, writes any result payload back and
// publishes the status code in the rc slot.
//
//	w := opfs.Spawn(ctx, backend, logger)
//	<-w.Messages()                         // opfs-async-loaded
//	w.Post(opfs.Message{Type: opfs.MsgInit, Init: &opts})
//	reply := <-w.Messages()                // opfs-async-inited
//
// Handlers run strictly one at a time. A handler panic is reported to the
// caller as an I/O error with the panic text as diagnostic.
package opfs
