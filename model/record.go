// Record packing implements spec §3.3 and §6.1: every field is encoded
// in schema order as fixed-width little-endian binary, back to back,
// with no length prefixes or padding beyond what each format already
// specifies. Grounded on original_source/backend/database/storage/
// Record.py's pack/unpack format-char table, reexpressed with
// encoding/binary instead of Python's struct module.
package model

import (
	"encoding/binary"
	"fmt"
	"math"

	"reldb/reldberr"
)

// Record is one row: a pointer to its table schema plus one Value per
// field, in schema order.
type Record struct {
	Schema *Schema
	Values []Value
}

// Pack encodes r into its fixed-width in-row binary form. It does not
// include TEXT/SOUND sidecar payloads; those live in Bytes/Hist and are
// written separately by the heap layer.
func (r *Record) Pack() ([]byte, error) {
	if len(r.Values) != len(r.Schema.Fields) {
		return nil, reldberr.New(reldberr.SchemaMismatch, "model.Record.Pack",
			fmt.Sprintf("record has %d values, schema %q has %d fields",
				len(r.Values), r.Schema.TableName, len(r.Schema.Fields)), nil)
	}

	buf := make([]byte, r.Schema.RowSize())
	pos := 0
	for i, field := range r.Schema.Fields {
		v := r.Values[i]
		if v.Format.Kind != field.Format.Kind || v.Format.N != field.Format.N {
			return nil, reldberr.New(reldberr.SchemaMismatch, "model.Record.Pack",
				fmt.Sprintf("field %q expects %s, got %s", field.Name, field.Format.Raw(), v.Format.Raw()), nil)
		}

		n, err := packValue(buf[pos:], field.Format, v)
		if err != nil {
			return nil, err
		}
		pos += n
	}
	return buf, nil
}

func packValue(dst []byte, f Format, v Value) (int, error) {
	size := f.Size()
	if len(dst) < size {
		return 0, reldberr.New(reldberr.CorruptFile, "model.packValue", "buffer too small for field", nil)
	}

	switch f.Kind {
	case KindInt:
		binary.LittleEndian.PutUint32(dst, uint32(v.Int))
	case KindFloat:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(v.Float))
	case KindBool:
		if v.Bool {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	case KindString:
		raw := []byte(v.Str)
		copy(dst[:size], raw)
		for i := len(raw); i < size; i++ {
			dst[i] = 0
		}
	case KindFloatTuple:
		for i := 0; i < f.N; i++ {
			var val float32
			if i < len(v.Floats) {
				val = v.Floats[i]
			}
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(val))
		}
	case KindIntTuple:
		for i := 0; i < f.N; i++ {
			var val int32
			if i < len(v.Ints) {
				val = v.Ints[i]
			}
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(val))
		}
	case KindText:
		binary.LittleEndian.PutUint32(dst, uint32(v.Int))
	case KindSound:
		var a, b int32
		if len(v.Ints) == 2 {
			a, b = v.Ints[0], v.Ints[1]
		}
		binary.LittleEndian.PutUint32(dst[0:4], uint32(a))
		binary.LittleEndian.PutUint32(dst[4:8], uint32(b))
	default:
		return 0, reldberr.New(reldberr.UnsupportedFormat, "model.packValue",
			fmt.Sprintf("cannot pack format %s", f.Raw()), nil)
	}
	return size, nil
}

// Unpack decodes a fixed-width record buffer according to schema,
// returning the in-row values (TEXT/SOUND values carry sidecar offsets,
// not yet materialized).
func Unpack(buf []byte, schema *Schema) (*Record, error) {
	if len(buf) < schema.RowSize() {
		return nil, reldberr.New(reldberr.CorruptFile, "model.Unpack",
			fmt.Sprintf("buffer of %d bytes too small for row size %d", len(buf), schema.RowSize()), nil)
	}

	values := make([]Value, len(schema.Fields))
	pos := 0
	for i, field := range schema.Fields {
		v, n, err := unpackValue(buf[pos:], field.Format)
		if err != nil {
			return nil, err
		}
		values[i] = v
		pos += n
	}

	return &Record{Schema: schema, Values: values}, nil
}

func unpackValue(src []byte, f Format) (Value, int, error) {
	size := f.Size()
	if len(src) < size {
		return Value{}, 0, reldberr.New(reldberr.CorruptFile, "model.unpackValue", "buffer too small for field", nil)
	}

	switch f.Kind {
	case KindInt:
		return IntValue(int32(binary.LittleEndian.Uint32(src))), size, nil
	case KindFloat:
		return FloatValue(math.Float32frombits(binary.LittleEndian.Uint32(src))), size, nil
	case KindBool:
		return BoolValue(src[0] != 0), size, nil
	case KindString:
		end := 0
		for end < size && src[end] != 0 {
			end++
		}
		return StringValue(f.N, string(src[:end])), size, nil
	case KindFloatTuple:
		vals := make([]float32, f.N)
		for i := 0; i < f.N; i++ {
			vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
		return FloatTupleValue(vals...), size, nil
	case KindIntTuple:
		vals := make([]int32, f.N)
		for i := 0; i < f.N; i++ {
			vals[i] = int32(binary.LittleEndian.Uint32(src[i*4:]))
		}
		return IntTupleValue(vals...), size, nil
	case KindText:
		return TextOffsetValue(int32(binary.LittleEndian.Uint32(src))), size, nil
	case KindSound:
		a := int32(binary.LittleEndian.Uint32(src[0:4]))
		b := int32(binary.LittleEndian.Uint32(src[4:8]))
		return SoundOffsetValue(a, b), size, nil
	default:
		return Value{}, 0, reldberr.New(reldberr.UnsupportedFormat, "model.unpackValue",
			fmt.Sprintf("cannot unpack format %s", f.Raw()), nil)
	}
}

// ValueByName returns the record's value for the named field.
func (r *Record) ValueByName(name string) (Value, bool) {
	for i, field := range r.Schema.Fields {
		if field.Name == name {
			return r.Values[i], true
		}
	}
	return Value{}, false
}

// PrimaryKeyValue returns the record's primary-key value, or ok=false
// if the schema has no primary key.
func (r *Record) PrimaryKeyValue() (Value, bool) {
	pk, ok := r.Schema.PrimaryKey()
	if !ok {
		return Value{}, false
	}
	return r.ValueByName(pk.Name)
}
