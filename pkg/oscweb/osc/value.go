package osc

import (
	"fmt"
	"math"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindInt32 Kind = iota
	KindFloat32
	KindString
	KindBytes
	KindInt64
	KindFloat64
	KindBool
	KindNil
	KindTimetag
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindFloat32:
		return "float32"
	case KindString:
		return "string"
	case KindBytes:
		return "blob"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindBool:
		return "bool"
	case KindNil:
		return "nil"
	case KindTimetag:
		return "timetag"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single OSC argument. The zero Value is Int32(0).
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

func Int32(v int32) Value     { return Value{kind: KindInt32, i: int64(v)} }
func Float32(v float32) Value { return Value{kind: KindFloat32, f: float64(v)} }
func String(v string) Value   { return Value{kind: KindString, s: v} }
func Int64(v int64) Value     { return Value{kind: KindInt64, i: v} }
func Float64(v float64) Value { return Value{kind: KindFloat64, f: v} }
func Nil() Value              { return Value{kind: KindNil} }
func Timetag(v uint64) Value  { return Value{kind: KindTimetag, i: int64(v)} }

func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, i: 1}
	}
	return Value{kind: KindBool}
}

// Bytes returns a blob Value holding a copy of v.
func Bytes(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindBytes, b: cp}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) Int32() int32     { return int32(v.i) }
func (v Value) Int64() int64     { return v.i }
func (v Value) Float32() float32 { return float32(v.f) }
func (v Value) Float64() float64 { return v.f }
func (v Value) Str() string      { return v.s }
func (v Value) Bool() bool       { return v.i != 0 }
func (v Value) Timetag() uint64  { return uint64(v.i) }

// Bytes returns a copy of the blob payload, or nil for other kinds.
func (v Value) Bytes() []byte {
	if v.kind != KindBytes {
		return nil
	}
	cp := make([]byte, len(v.b))
	copy(cp, v.b)
	return cp
}

// Equal reports whether two values have the same kind and payload. Floats are
// compared bitwise so NaN equals NaN.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindFloat32:
		return math.Float32bits(float32(v.f)) == math.Float32bits(float32(o.f))
	case KindFloat64:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case KindString:
		return v.s == o.s
	case KindBytes:
		if len(v.b) != len(o.b) {
			return false
		}
		for i := range v.b {
			if v.b[i] != o.b[i] {
				return false
			}
		}
		return true
	case KindNil:
		return true
	default:
		return v.i == o.i
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindFloat32, KindFloat64:
		return fmt.Sprintf("%s(%g)", v.kind, v.f)
	case KindString:
		return fmt.Sprintf("%s(%q)", v.kind, v.s)
	case KindBytes:
		return fmt.Sprintf("%s(%d bytes)", v.kind, len(v.b))
	case KindBool:
		return fmt.Sprintf("%s(%t)", v.kind, v.Bool())
	case KindNil:
		return "nil"
	case KindTimetag:
		return fmt.Sprintf("%s(%d)", v.kind, uint64(v.i))
	default:
		return fmt.Sprintf("%s(%d)", v.kind, v.i)
	}
}
