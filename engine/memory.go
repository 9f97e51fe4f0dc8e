package engine

import (
	"bytes"

	"github.com/tetratelabs/wazero/api"

	wasmsqlite "github.com/wippyai/wasm-sqlite"
	"github.com/wippyai/wasm-sqlite/errors"
)

// Memory adapts a wazero api.Memory to wasmsqlite.Memory.
type Memory struct {
	Mem api.Memory
}

var (
	_ wasmsqlite.Memory      = (*Memory)(nil)
	_ wasmsqlite.MemorySizer = (*Memory)(nil)
)

// WrapMemory returns nil for a module without memory.
func WrapMemory(mem api.Memory) *Memory {
	if mem == nil {
		return nil
	}
	return &Memory{Mem: mem}
}

func oob(offset, length uint32) error {
	return errors.OutOfBounds(errors.PhaseHost, int(offset), int(length))
}

// Read returns a view of guest memory. Writes to the slice are visible to
// the guest until memory grows.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, oob(offset, length)
	}
	return data, nil
}

// Write copies data into guest memory.
func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return oob(offset, uint32(len(data)))
	}
	return nil
}

// ReadU8 reads one byte.
func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, oob(offset, 1)
	}
	return v, nil
}

// ReadU32 reads a little-endian uint32.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, oob(offset, 4)
	}
	return v, nil
}

// ReadU64 reads a little-endian uint64.
func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.Mem.ReadUint64Le(offset)
	if !ok {
		return 0, oob(offset, 8)
	}
	return v, nil
}

// WriteU8 writes one byte.
func (m *Memory) WriteU8(offset uint32, value uint8) error {
	if !m.Mem.WriteByte(offset, value) {
		return oob(offset, 1)
	}
	return nil
}

// WriteU32 writes a little-endian uint32.
func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.Mem.WriteUint32Le(offset, value) {
		return oob(offset, 4)
	}
	return nil
}

// WriteU64 writes a little-endian uint64.
func (m *Memory) WriteU64(offset uint32, value uint64) error {
	if !m.Mem.WriteUint64Le(offset, value) {
		return oob(offset, 8)
	}
	return nil
}

// WriteF64 writes a little-endian IEEE 754 double.
func (m *Memory) WriteF64(offset uint32, value float64) error {
	if !m.Mem.WriteFloat64Le(offset, value) {
		return oob(offset, 8)
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 { return m.Mem.Size() }

// ReadCString reads a NUL-terminated string starting at offset. Memories
// that report their size are scanned in one view; others byte by byte.
func ReadCString(mem wasmsqlite.Memory, offset uint32) (string, error) {
	sizer, ok := mem.(wasmsqlite.MemorySizer)
	if !ok {
		return readCStringBytes(mem, offset)
	}
	size := sizer.Size()
	if offset >= size {
		return "", oob(offset, 1)
	}
	data, err := mem.Read(offset, size-offset)
	if err != nil {
		return "", err
	}
	n := bytes.IndexByte(data, 0)
	if n < 0 {
		return "", unterminated(offset)
	}
	return string(data[:n]), nil
}

func readCStringBytes(mem wasmsqlite.Memory, offset uint32) (string, error) {
	var b []byte
	for at := offset; ; at++ {
		c, err := mem.ReadU8(at)
		if err != nil {
			if at == offset {
				return "", err
			}
			return "", unterminated(offset)
		}
		if c == 0 {
			return string(b), nil
		}
		b = append(b, c)
	}
}

func unterminated(offset uint32) error {
	return errors.New(errors.PhaseHost, errors.KindInvalidData).
		Value(offset).
		Detail("string at %d is not NUL-terminated", offset).
		Build()
}

// WriteCString writes s and a NUL into a buffer of capacity bytes at
// offset, truncating s when it does not fit. It reports whether s fit.
func WriteCString(mem wasmsqlite.Memory, offset, capacity uint32, s string) (bool, error) {
	if capacity == 0 {
		return len(s) == 0, nil
	}
	fit := uint32(len(s)) < capacity
	if !fit {
		s = s[:capacity-1]
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return fit, mem.Write(offset, buf)
}
