package s11n

import (
	"fmt"
	"strconv"
)

// Kind is the type tag written before each serialized argument.
type Kind byte

const (
	KindFloat  Kind = 1 // 8-byte IEEE-754
	KindInt    Kind = 2 // 8-byte signed integer
	KindBool   Kind = 3 // 4-byte int32, 0 or 1
	KindString Kind = 4 // int32 byte length + UTF-8 bytes
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) valid() bool {
	return k >= KindFloat && k <= KindString
}

// Value is one serializable argument or result. The zero Value has no kind
// and cannot be serialized.
type Value struct {
	s    string
	num  uint64
	kind Kind
}

// Float makes a float value.
func Float(f float64) Value { return Value{kind: KindFloat, num: floatBits(f)} }

// Int makes an integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: uint64(i)} }

// Bool makes a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// String makes a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// ValueOf converts a Go scalar. Unsupported types panic: passing one is a
// programming error on the calling side.
func ValueOf(x any) Value {
	switch v := x.(type) {
	case Value:
		return v
	case float64:
		return Float(v)
	case float32:
		return Float(float64(v))
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint8:
		return Int(int64(v))
	case uint16:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case bool:
		return Bool(v)
	case string:
		return String(v)
	}
	panic(fmt.Sprintf("s11n: unsupported argument type %T", x))
}

// Values converts each argument with ValueOf.
func Values(xs ...any) []Value {
	out := make([]Value, len(xs))
	for i, x := range xs {
		out[i] = ValueOf(x)
	}
	return out
}

// Kind returns the value's tag, 0 for the zero Value.
func (v Value) Kind() Kind { return v.kind }

// Float returns the value as float64. Integers are converted.
func (v Value) Float() float64 {
	switch v.kind {
	case KindFloat:
		return floatFrom(v.num)
	case KindInt, KindBool:
		return float64(int64(v.num))
	}
	return 0
}

// Int returns the value as int64. Floats are truncated.
func (v Value) Int() int64 {
	switch v.kind {
	case KindInt, KindBool:
		return int64(v.num)
	case KindFloat:
		return int64(floatFrom(v.num))
	}
	return 0
}

// Bool reports whether a numeric value is non-zero or a string is non-empty.
func (v Value) Bool() bool {
	switch v.kind {
	case KindString:
		return v.s != ""
	case KindFloat:
		return floatFrom(v.num) != 0
	}
	return v.num != 0
}

// Str returns the string payload, empty for other kinds.
func (v Value) Str() string {
	if v.kind == KindString {
		return v.s
	}
	return ""
}

// Interface returns the value as a Go scalar.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.Float()
	case KindInt:
		return v.Int()
	case KindBool:
		return v.Bool()
	case KindString:
		return v.s
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	case 0:
		return "<invalid>"
	}
	return fmt.Sprint(v.Interface())
}

// size is the encoded payload size, excluding the tag byte.
func (v Value) size() int {
	switch v.kind {
	case KindFloat, KindInt:
		return 8
	case KindBool:
		return 4
	case KindString:
		return 4 + len(v.s)
	}
	return 0
}
