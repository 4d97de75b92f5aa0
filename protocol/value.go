package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ardnew/softexec/pkg"
)

// Kind is the type tag of a Value slot.
type Kind uint8

// Value kinds. The numeric values are the wire tags.
const (
	KindVoid    Kind = 0
	KindUint32  Kind = 1
	KindInt32   Kind = 2
	KindBool    Kind = 3
	KindObject  Kind = 4
	KindFloat32 Kind = 8
	KindInt64   Kind = 17
	KindUint64  Kind = 18
	KindFloat64 Kind = 20
)

// Size returns the number of value bytes following the kind tag on the wire,
// or 0 for unknown kinds.
func (k Kind) Size() int {
	switch k {
	case KindUint32, KindInt32, KindBool, KindObject, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	}
	return 0
}

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindUint32:
		return "uint32"
	case KindInt32:
		return "int32"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	case KindFloat32:
		return "float32"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one typed argument or return slot.
type Value struct {
	kind Kind
	bits uint64
}

// Int32 returns a signed 32-bit value.
func Int32(v int32) Value { return Value{kind: KindInt32, bits: uint64(uint32(v))} }

// Uint32 returns an unsigned 32-bit value.
func Uint32(v uint32) Value { return Value{kind: KindUint32, bits: uint64(v)} }

// Bool returns a boolean value.
func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, bits: 1}
	}
	return Value{kind: KindBool}
}

// Object returns a device-side object reference.
func Object(ref uint32) Value { return Value{kind: KindObject, bits: uint64(ref)} }

// Float32 returns a single precision value.
func Float32(v float32) Value {
	return Value{kind: KindFloat32, bits: uint64(math.Float32bits(v))}
}

// Int64 returns a signed 64-bit value.
func Int64(v int64) Value { return Value{kind: KindInt64, bits: uint64(v)} }

// Uint64 returns an unsigned 64-bit value.
func Uint64(v uint64) Value { return Value{kind: KindUint64, bits: v} }

// Float64 returns a double precision value.
func Float64(v float64) Value { return Value{kind: KindFloat64, bits: math.Float64bits(v)} }

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// Int32 returns the low 32 bits as a signed integer.
func (v Value) Int32() int32 { return int32(uint32(v.bits)) }

// Uint32 returns the low 32 bits.
func (v Value) Uint32() uint32 { return uint32(v.bits) }

// Bool reports whether the value is non-zero.
func (v Value) Bool() bool { return v.bits != 0 }

// Object returns the value as an object reference.
func (v Value) Object() uint32 { return uint32(v.bits) }

// Float32 interprets the low 32 bits as a single precision float.
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }

// Int64 returns the value as a signed 64-bit integer, sign-extending 32-bit
// signed kinds.
func (v Value) Int64() int64 {
	if v.kind == KindInt32 {
		return int64(v.Int32())
	}
	return int64(v.bits)
}

// Uint64 returns the raw bits.
func (v Value) Uint64() uint64 { return v.bits }

// Float64 returns the value as a double, widening single precision kinds.
func (v Value) Float64() float64 {
	if v.kind == KindFloat32 {
		return float64(v.Float32())
	}
	return math.Float64frombits(v.bits)
}

func (v Value) String() string {
	switch v.kind {
	case KindInt32:
		return fmt.Sprintf("%d", v.Int32())
	case KindUint32:
		return fmt.Sprintf("%d", v.Uint32())
	case KindBool:
		return fmt.Sprintf("%t", v.Bool())
	case KindObject:
		return fmt.Sprintf("object(0x%08X)", v.Object())
	case KindFloat32:
		return fmt.Sprintf("%g", v.Float32())
	case KindInt64:
		return fmt.Sprintf("%d", v.Int64())
	case KindUint64:
		return fmt.Sprintf("%d", v.Uint64())
	case KindFloat64:
		return fmt.Sprintf("%g", v.Float64())
	default:
		return v.kind.String()
	}
}

// AppendValues appends the raw slot encoding of vals to dst: one kind byte
// followed by 4 or 8 little-endian bytes per value.
func AppendValues(dst []byte, vals ...Value) []byte {
	for _, v := range vals {
		dst = append(dst, byte(v.kind))
		switch v.kind.Size() {
		case 4:
			dst = binary.LittleEndian.AppendUint32(dst, uint32(v.bits))
		case 8:
			dst = binary.LittleEndian.AppendUint64(dst, v.bits)
		}
	}
	return dst
}

// ParseValues decodes the raw slot encoding produced by AppendValues.
func ParseValues(p []byte) ([]Value, error) {
	var vals []Value
	for len(p) > 0 {
		k := Kind(p[0])
		n := k.Size()
		if n == 0 {
			return nil, fmt.Errorf("%w: unknown value kind %d", pkg.ErrMalformed, p[0])
		}
		if len(p) < 1+n {
			return nil, fmt.Errorf("%w: truncated %s value", pkg.ErrMalformed, k)
		}
		v := Value{kind: k}
		if n == 4 {
			v.bits = uint64(binary.LittleEndian.Uint32(p[1:]))
		} else {
			v.bits = binary.LittleEndian.Uint64(p[1:])
		}
		vals = append(vals, v)
		p = p[1+n:]
	}
	return vals, nil
}
