// Package resource provides a generic handle table.
//
// The Table maps small non-zero integer handles to Go values and reuses
// freed handles:
//
//	table := resource.NewTable[*File]()
//
//	h, err := table.Insert(f)
//	f, ok := table.Get(h)
//	f, ok = table.Remove(h)
//
// Register observers to track lifecycle events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//		log.Printf("handle %d %s", e.Handle, e.Type)
//	}))
//
// Close removes every remaining value, calling Close on values that
// implement Closer, and aggregates the errors.
package resource
