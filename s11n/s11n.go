// Package s11n implements the compact tagged argument/result codec used in
// the serialization region shared by the VFS caller and the storage worker.
//
// Layout: byte 0 holds the argument count N, bytes 1..N hold one type tag
// per argument, and the packed values follow in order. Multi-byte values use
// the byte order chosen at construction.
package s11n

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/wippyai/wasm-sqlite/errors"
)

// DefaultRegionSize is the default serialization region capacity.
const DefaultRegionSize = 2048

// MaxArgs is the largest argument count byte 0 can hold.
const MaxArgs = math.MaxUint8

// Stats counts codec activity.
type Stats struct {
	SerializeCount   int64
	SerializeTime    time.Duration
	DeserializeCount int64
	DeserializeTime  time.Duration
}

// Serializer reads and writes tagged values in a fixed region. It holds no
// lock; the handshake guarantees a single writer at a time.
type Serializer struct {
	buf   []byte
	order binary.ByteOrder

	serN, serNs     atomic.Int64
	deserN, deserNs atomic.Int64
}

// New wraps region with the given byte order.
func New(region []byte, littleEndian bool) *Serializer {
	s := &Serializer{buf: region, order: binary.BigEndian}
	if littleEndian {
		s.order = binary.LittleEndian
	}
	return s
}

// Cap returns the region capacity.
func (s *Serializer) Cap() int { return len(s.buf) }

// Size returns the encoded size of vals.
func Size(vals ...Value) int {
	n := 1 + len(vals)
	for _, v := range vals {
		n += v.size()
	}
	return n
}

// Serialize writes vals to the region. With no values it writes an empty
// payload. Overflowing the region or passing a zero Value panics.
func (s *Serializer) Serialize(vals ...Value) {
	start := time.Now()
	defer s.observe(&s.serN, &s.serNs, start)

	if len(vals) > MaxArgs {
		panic(fmt.Sprintf("s11n: %d arguments exceed the limit of %d", len(vals), MaxArgs))
	}
	if need := Size(vals...); need > len(s.buf) {
		panic(errors.New(errors.PhaseS11n, errors.KindOverflow).
			Value(need).
			Detail("payload of %d bytes exceeds region of %d bytes", need, len(s.buf)).
			Build())
	}

	s.buf[0] = byte(len(vals))
	off := 1 + len(vals)
	for i, v := range vals {
		if !v.kind.valid() {
			panic(fmt.Sprintf("s11n: argument %d has no type", i))
		}
		s.buf[1+i] = byte(v.kind)
		switch v.kind {
		case KindFloat, KindInt:
			s.order.PutUint64(s.buf[off:], v.num)
			off += 8
		case KindBool:
			s.order.PutUint32(s.buf[off:], uint32(v.num))
			off += 4
		case KindString:
			s.order.PutUint32(s.buf[off:], uint32(len(v.s)))
			off += 4
			off += copy(s.buf[off:], v.s)
		}
	}
}

// SerializeArgs converts Go scalars with ValueOf and serializes them.
func (s *Serializer) SerializeArgs(xs ...any) {
	s.Serialize(Values(xs...)...)
}

// Clear writes an empty payload.
func (s *Serializer) Clear() {
	s.Serialize()
}

// SerializeMessage writes a single string, truncated at a rune boundary so
// it always fits the region.
func (s *Serializer) SerializeMessage(msg string) {
	room := len(s.buf) - Size(String(""))
	if room < 0 {
		room = 0
	}
	if len(msg) > room {
		// Drop the rune that straddles the cut.
		cut := room
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	s.Serialize(String(msg))
}

// Deserialize decodes the region. An empty payload yields nil.
func (s *Serializer) Deserialize() ([]Value, error) {
	start := time.Now()
	defer s.observe(&s.deserN, &s.deserNs, start)

	if len(s.buf) == 0 {
		return nil, errors.OutOfBounds(errors.PhaseS11n, 1, 0)
	}
	argc := int(s.buf[0])
	if argc == 0 {
		return nil, nil
	}
	if 1+argc > len(s.buf) {
		return nil, errors.OutOfBounds(errors.PhaseS11n, 1+argc, len(s.buf))
	}

	out := make([]Value, argc)
	off := 1 + argc
	for i := 0; i < argc; i++ {
		kind := Kind(s.buf[1+i])
		if !kind.valid() {
			return nil, errors.InvalidTag(byte(kind), i)
		}
		v := Value{kind: kind}
		switch kind {
		case KindFloat, KindInt:
			if off+8 > len(s.buf) {
				return nil, errors.OutOfBounds(errors.PhaseS11n, off+8, len(s.buf))
			}
			v.num = s.order.Uint64(s.buf[off:])
			off += 8
		case KindBool:
			if off+4 > len(s.buf) {
				return nil, errors.OutOfBounds(errors.PhaseS11n, off+4, len(s.buf))
			}
			v.num = uint64(s.order.Uint32(s.buf[off:]))
			off += 4
		case KindString:
			if off+4 > len(s.buf) {
				return nil, errors.OutOfBounds(errors.PhaseS11n, off+4, len(s.buf))
			}
			n := int(int32(s.order.Uint32(s.buf[off:])))
			off += 4
			if n < 0 || off+n > len(s.buf) {
				return nil, errors.OutOfBounds(errors.PhaseS11n, off+n, len(s.buf))
			}
			v.s = string(s.buf[off : off+n])
			off += n
		}
		out[i] = v
	}
	return out, nil
}

// Stats returns a snapshot of the codec counters.
func (s *Serializer) Stats() Stats {
	return Stats{
		SerializeCount:   s.serN.Load(),
		SerializeTime:    time.Duration(s.serNs.Load()),
		DeserializeCount: s.deserN.Load(),
		DeserializeTime:  time.Duration(s.deserNs.Load()),
	}
}

// ResetStats zeroes the codec counters.
func (s *Serializer) ResetStats() {
	s.serN.Store(0)
	s.serNs.Store(0)
	s.deserN.Store(0)
	s.deserNs.Store(0)
}

func (s *Serializer) observe(n, ns *atomic.Int64, start time.Time) {
	n.Add(1)
	ns.Add(int64(time.Since(start)))
}

func floatBits(f float64) uint64 { return math.Float64bits(f) }

func floatFrom(b uint64) float64 { return math.Float64frombits(b) }
