package model

import (
	"bytes"
	"math"
)

// Value is a single field's runtime value, tagged by the same FormatKind
// as its Format. TEXT and SOUND fields carry their sidecar offset(s)
// until Materialize is called by the heap layer (spec §4.1: "materializes
// TEXT by reading from sidecars").
type Value struct {
	Format Format

	Int    int32
	Float  float32
	Bool   bool
	Str    string    // KindString
	Floats []float32 // KindFloatTuple
	Ints   []int32   // KindIntTuple

	// KindText: Int is the sidecar offset until Materialized.
	// KindSound: Ints[0] is the blob offset, Ints[1] the histogram
	// offset, until Materialized.
	Materialized bool
	Bytes        []byte // TEXT payload, or SOUND opaque blob
	Hist         []byte // SOUND histogram payload
}

// IntValue, FloatValue, StringValue, BoolValue, FloatTupleValue, and
// IntTupleValue are convenience constructors for scalar/tuple values.
func IntValue(v int32) Value   { return Value{Format: Format{Kind: KindInt}, Int: v} }
func FloatValue(v float32) Value { return Value{Format: Format{Kind: KindFloat}, Float: v} }
func BoolValue(v bool) Value   { return Value{Format: Format{Kind: KindBool}, Bool: v} }

func StringValue(n int, v string) Value {
	return Value{Format: Format{Kind: KindString, N: n}, Str: v}
}

func FloatTupleValue(vs ...float32) Value {
	return Value{Format: Format{Kind: KindFloatTuple, N: len(vs)}, Floats: vs}
}

func IntTupleValue(vs ...int32) Value {
	return Value{Format: Format{Kind: KindIntTuple, N: len(vs)}, Ints: vs}
}

// TextOffsetValue builds the in-row representation of a TEXT field.
func TextOffsetValue(offset int32) Value {
	return Value{Format: Format{Kind: KindText}, Int: offset}
}

// SoundOffsetValue builds the in-row representation of a SOUND field.
func SoundOffsetValue(blobOffset, histOffset int32) Value {
	return Value{Format: Format{Kind: KindSound}, Ints: []int32{blobOffset, histOffset}}
}

// Sentinel returns the deleted-marker value for formats that have one
// (spec §3.1). Bool, tuple, TEXT, and SOUND formats have no sentinel;
// the second return value is false for those.
func Sentinel(f Format) (Value, bool) {
	switch f.Kind {
	case KindInt:
		return IntValue(-1), true
	case KindFloat:
		return FloatValue(float32(math.Inf(-1))), true
	case KindString:
		return StringValue(f.N, ""), true
	default:
		return Value{}, false
	}
}

// IsSentinel reports whether v equals the sentinel for its format.
func IsSentinel(v Value) bool {
	s, ok := Sentinel(v.Format)
	if !ok {
		return false
	}
	return Equal(v, s)
}

// Equal compares two values of the same format for equality.
func Equal(a, b Value) bool {
	switch a.Format.Kind {
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindBool:
		return a.Bool == b.Bool
	case KindString:
		return a.Str == b.Str
	case KindFloatTuple:
		if len(a.Floats) != len(b.Floats) {
			return false
		}
		for i := range a.Floats {
			if a.Floats[i] != b.Floats[i] {
				return false
			}
		}
		return true
	case KindIntTuple:
		if len(a.Ints) != len(b.Ints) {
			return false
		}
		for i := range a.Ints {
			if a.Ints[i] != b.Ints[i] {
				return false
			}
		}
		return true
	case KindText:
		if a.Materialized && b.Materialized {
			return bytes.Equal(a.Bytes, b.Bytes)
		}
		return a.Int == b.Int
	case KindSound:
		if len(a.Ints) == 2 && len(b.Ints) == 2 {
			return a.Ints[0] == b.Ints[0] && a.Ints[1] == b.Ints[1]
		}
		return false
	default:
		return false
	}
}

// Compare orders two scalar-key values (INT, FLOAT, or Ns). It panics on
// non-scalar formats; callers must check Format.IsScalarKey() first.
func Compare(a, b Value) int {
	switch a.Format.Kind {
	case KindInt:
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	case KindFloat:
		switch {
		case a.Float < b.Float:
			return -1
		case a.Float > b.Float:
			return 1
		default:
			return 0
		}
	case KindString:
		return bytes.Compare([]byte(a.Str), []byte(b.Str))
	default:
		panic("model.Compare: non-scalar-key format")
	}
}
