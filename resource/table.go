package resource

import (
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/wippyai/wasm-sqlite/errors"
)

// ErrClosed is returned by Insert after Close.
var ErrClosed = errors.Closed(errors.PhaseVFS, "resource table")

type entry[T any] struct {
	value T
	valid bool
}

// Table maps small integer handles to values, reusing freed handles.
type Table[T any] struct {
	entries   []entry[T]
	freeList  []Handle
	observers []Observer
	mu        sync.RWMutex
	live      int
	closed    bool
}

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]Handle, 0, 8),
	}
}

// Insert adds a value and returns its handle.
func (t *Table[T]) Insert(value T) (Handle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, ErrClosed
	}

	var h Handle
	e := entry[T]{value: value, valid: true}
	if n := len(t.freeList); n > 0 {
		h = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	t.live++
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: h, Value: value})
	return h, nil
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(h Handle) (T, bool) {
	var zero T
	if h == 0 {
		return zero, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(h) > len(t.entries) || !t.entries[h-1].valid {
		return zero, false
	}
	return t.entries[h-1].value, true
}

// Remove drops a value and returns it.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	var zero T
	if h == 0 {
		return zero, false
	}
	t.mu.Lock()
	if int(h) > len(t.entries) || !t.entries[h-1].valid {
		t.mu.Unlock()
		return zero, false
	}
	value := t.entries[h-1].value
	t.entries[h-1] = entry[T]{}
	t.freeList = append(t.freeList, h)
	t.live--
	t.mu.Unlock()

	t.notify(Event{Type: EventDropped, Handle: h, Value: value})
	return value, true
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Each calls fn for every live value until it returns false.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	snapshot := make([]Handle, 0, t.live)
	for i, e := range t.entries {
		if e.valid {
			snapshot = append(snapshot, Handle(i+1))
		}
	}
	t.mu.RUnlock()

	for _, h := range snapshot {
		if v, ok := t.Get(h); ok && !fn(h, v) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Close removes every value, closing those that implement Closer, and
// rejects further inserts. Close errors are aggregated.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	var result *multierror.Error
	t.Each(func(h Handle, _ T) bool {
		v, ok := t.Remove(h)
		if !ok {
			return true
		}
		if c, ok := any(v).(Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return true
	})
	return result.ErrorOrNil()
}

func (t *Table[T]) notify(e Event) {
	t.mu.RLock()
	observers := t.observers
	t.mu.RUnlock()
	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}
