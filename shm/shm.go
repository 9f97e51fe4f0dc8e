// Package shm provides the memory shared between the synchronous VFS caller
// and the asynchronous storage worker: an int32 control block used for
// wait/notify signalling and a flat I/O region holding the file data buffer
// and the serialization region.
//
// Both live in one page-aligned slab allocated outside the Go heap where the
// platform allows it. All control-block access is atomic.
package shm

import (
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/negrel/assert"

	"github.com/wippyai/wasm-sqlite/errors"
)

// PageSize is the slab alignment and the size reserved for the control block.
const PageSize = 0x1000

// Slot names an int32 cell of the control block.
type Slot int

const (
	// SlotWhichOp holds the ID of the pending operation; 0 means none.
	SlotWhichOp Slot = iota
	// SlotRC holds the result code; -1 means pending.
	SlotRC
	// SlotSeq counts published results. Diagnostics only.
	SlotSeq

	slotCount
)

func (s Slot) String() string {
	switch s {
	case SlotWhichOp:
		return "whichOp"
	case SlotRC:
		return "rc"
	case SlotSeq:
		return "seq"
	}
	return "invalid"
}

// WaitResult is the outcome of ControlBlock.Wait.
type WaitResult int

const (
	// WaitOK means the waiter was woken.
	WaitOK WaitResult = iota
	// WaitNotEqual means the slot did not hold the expected value on entry.
	WaitNotEqual
	// WaitTimedOut means the timeout elapsed first.
	WaitTimedOut
)

func (r WaitResult) String() string {
	switch r {
	case WaitOK:
		return "ok"
	case WaitNotEqual:
		return "not-equal"
	case WaitTimedOut:
		return "timed-out"
	}
	return "invalid"
}

// ControlBlock is a fixed array of int32 slots over shared memory.
type ControlBlock struct {
	slots []int32
}

func newControlBlock(mem []byte) *ControlBlock {
	assert.GreaterOrEqual(len(mem), int(slotCount)*4, "control block memory too small")
	return &ControlBlock{
		slots: unsafe.Slice((*int32)(unsafe.Pointer(&mem[0])), int(slotCount)),
	}
}

func (c *ControlBlock) addr(s Slot) *int32 {
	assert.Less(int(s), len(c.slots), "slot out of range")
	return &c.slots[s]
}

// Load atomically reads a slot.
func (c *ControlBlock) Load(s Slot) int32 {
	return atomic.LoadInt32(c.addr(s))
}

// Store atomically writes a slot.
func (c *ControlBlock) Store(s Slot, v int32) {
	atomic.StoreInt32(c.addr(s), v)
}

// Add atomically adds delta and returns the new value.
func (c *ControlBlock) Add(s Slot, delta int32) int32 {
	return atomic.AddInt32(c.addr(s), delta)
}

// CompareAndSwap atomically replaces old with new.
func (c *ControlBlock) CompareAndSwap(s Slot, old, new int32) bool {
	return atomic.CompareAndSwapInt32(c.addr(s), old, new)
}

// Wait blocks while the slot holds expected, until notified or the timeout
// elapses. A negative timeout waits forever. Wakeups may be spurious; callers
// re-check the slot.
func (c *ControlBlock) Wait(s Slot, expected int32, timeout time.Duration) WaitResult {
	return wait(c.addr(s), expected, timeout)
}

// Notify wakes up to n waiters on the slot and returns how many were woken
// when the platform can tell.
func (c *ControlBlock) Notify(s Slot, n int) int {
	return notify(c.addr(s), n)
}

// Block is one shared allocation: a control page followed by the I/O region.
// The file data buffer occupies the front of the I/O region and the
// serialization region follows it.
type Block struct {
	raw            []byte
	ctl            *ControlBlock
	io             []byte
	fileBufferSize int
	s11nSize       int
}

// NewBlock allocates a block sized for the given file buffer and
// serialization region.
func NewBlock(fileBufferSize, s11nSize int) (*Block, error) {
	if fileBufferSize <= 0 || s11nSize <= 0 {
		return nil, errors.New(errors.PhaseShm, errors.KindInvalidInput).
			Detail("buffer sizes must be positive (file=%d, s11n=%d)", fileBufferSize, s11nSize).
			Build()
	}
	ioSize := fileBufferSize + s11nSize
	total := PageSize + alignUp(ioSize, PageSize)

	raw, err := AllocSlab(total)
	if err != nil {
		return nil, errors.AllocationFailed(errors.PhaseShm, total, err)
	}
	return &Block{
		raw:            raw,
		ctl:            newControlBlock(raw[:PageSize]),
		io:             raw[PageSize : PageSize+ioSize : PageSize+ioSize],
		fileBufferSize: fileBufferSize,
		s11nSize:       s11nSize,
	}, nil
}

// Control returns the control block.
func (b *Block) Control() *ControlBlock { return b.ctl }

// IO returns the whole I/O region.
func (b *Block) IO() []byte { return b.io }

// FileBuffer returns the file data buffer.
func (b *Block) FileBuffer() []byte {
	return b.io[:b.fileBufferSize:b.fileBufferSize]
}

// S11nOffset is the offset of the serialization region within IO.
func (b *Block) S11nOffset() int { return b.fileBufferSize }

// S11nSize is the capacity of the serialization region.
func (b *Block) S11nSize() int { return b.s11nSize }

// Region returns the bytes [offset, offset+size) of the I/O region.
func (b *Block) Region(offset, size int) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > len(b.io) {
		return nil, errors.OutOfBounds(errors.PhaseShm, offset+size, len(b.io))
	}
	return b.io[offset : offset+size : offset+size], nil
}

// Free releases the slab. The block must not be used afterwards.
func (b *Block) Free() error {
	if b.raw == nil {
		return nil
	}
	raw := b.raw
	b.raw, b.io, b.ctl = nil, nil, nil
	return DeallocSlab(raw)
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
