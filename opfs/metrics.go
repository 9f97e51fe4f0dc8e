package opfs

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-sqlite/s11n"
)

// OpMetrics are the counters for one operation.
type OpMetrics struct {
	Count int64         `json:"count"`
	Time  time.Duration `json:"time"`
	Wait  time.Duration `json:"wait"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (m OpMetrics) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("count", m.Count)
	enc.AddDuration("time", m.Time)
	enc.AddDuration("wait", m.Wait)
	return nil
}

// Snapshot is a point-in-time copy of the metrics table.
type Snapshot struct {
	Ops  map[string]OpMetrics `json:"ops"`
	S11n s11n.Stats           `json:"s11n"`
}

// Metrics records per-operation execution and backend wait times. Only the
// worker mutates it; the lock lets other goroutines take snapshots.
type Metrics struct {
	mu  sync.Mutex
	ops map[string]*OpMetrics
	ser *s11n.Serializer
}

func newMetrics() *Metrics {
	return &Metrics{ops: make(map[string]*OpMetrics)}
}

func (m *Metrics) reset(ops []Op, ser *s11n.Serializer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = make(map[string]*OpMetrics, len(ops))
	for _, op := range ops {
		m.ops[string(op)] = &OpMetrics{}
	}
	m.ser = ser
	if ser != nil {
		ser.ResetStats()
	}
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{Ops: make(map[string]OpMetrics, len(m.ops))}
	for name, om := range m.ops {
		s.Ops[name] = *om
	}
	if m.ser != nil {
		s.S11n = m.ser.Stats()
	}
	return s
}

// Dump logs the counters of every operation that ran.
func (m *Metrics) Dump(log *zap.Logger) {
	s := m.Snapshot()
	names := make([]string, 0, len(s.Ops))
	for name := range s.Ops {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]zap.Field, 0, len(names)+4)
	var total int64
	for _, name := range names {
		om := s.Ops[name]
		if om.Count == 0 {
			continue
		}
		total += om.Count
		fields = append(fields, zap.Object(name, om))
	}
	fields = append(fields,
		zap.Int64("total", total),
		zap.Int64("serialize_count", s.S11n.SerializeCount),
		zap.Duration("serialize_time", s.S11n.SerializeTime),
		zap.Int64("deserialize_count", s.S11n.DeserializeCount),
	)
	log.Info("worker metrics", fields...)
}

type opTimer struct {
	m     *Metrics
	op    string
	start time.Time
}

// begin counts one run of op and starts its execution timer.
func (m *Metrics) begin(op string) opTimer {
	m.mu.Lock()
	if om := m.ops[op]; om != nil {
		om.Count++
	}
	m.mu.Unlock()
	return opTimer{m: m, op: op, start: time.Now()}
}

func (t opTimer) end() {
	d := time.Since(t.start)
	t.m.mu.Lock()
	if om := t.m.ops[t.op]; om != nil {
		om.Time += d
	}
	t.m.mu.Unlock()
}

// wait starts a backend wait timer; calling the result stops it.
func (t opTimer) wait() func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		t.m.mu.Lock()
		if om := t.m.ops[t.op]; om != nil {
			om.Wait += d
		}
		t.m.mu.Unlock()
	}
}
