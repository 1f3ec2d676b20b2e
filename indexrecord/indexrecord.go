// Package indexrecord implements the fixed-width (key, offset) pair
// that every secondary index (B+ tree, extendible hash, sequential
// index) stores one of per entry (spec §3.6).
//
// Grounded on original_source/backend/database/indexing/IndexRecord.py:
// a one-byte type tag distinguishes INT/FLOAT/STRING keys, followed by
// the key's native encoding and a trailing int32 offset into the heap
// file. Go expresses the Python file's type_byte dispatch as the
// model.FormatKind already carried by the key's Format, so no separate
// Go-side type constant is needed; the wire tag byte is still written
// for on-disk compatibility with that same dispatch shape.
package indexrecord

import (
	"encoding/binary"
	"fmt"
	"math"

	"reldb/model"
	"reldb/reldberr"
)

// wire type tags, matching IndexRecord.py's TYPE_INT/TYPE_FLOAT/TYPE_STRING.
const (
	tagInt    = 0
	tagFloat  = 1
	tagString = 2
)

// Record is one index entry: the indexed key and the heap-file offset
// of the record it points to.
type Record struct {
	Format model.Format
	Key    model.Value
	Offset int32
}

// Size returns the fixed on-disk size of a Record for the given key
// format: 1 tag byte + the key's Format.Size() + 4 offset bytes.
func Size(format model.Format) (int, error) {
	if !format.IsScalarKey() {
		return 0, reldberr.New(reldberr.UnsupportedFormat, "indexrecord.Size",
			fmt.Sprintf("format %s cannot be an index key", format.Raw()), nil)
	}
	return 1 + format.Size() + 4, nil
}

// Pack serializes r to its fixed-width wire form.
func Pack(r Record) ([]byte, error) {
	size, err := Size(r.Format)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)

	switch r.Format.Kind {
	case model.KindInt:
		buf[0] = tagInt
		binary.LittleEndian.PutUint32(buf[1:5], uint32(r.Key.Int))
		binary.LittleEndian.PutUint32(buf[5:9], uint32(r.Offset))
	case model.KindFloat:
		buf[0] = tagFloat
		binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(r.Key.Float))
		binary.LittleEndian.PutUint32(buf[5:9], uint32(r.Offset))
	case model.KindString:
		buf[0] = tagString
		raw := []byte(r.Key.Str)
		n := r.Format.N
		copy(buf[1:1+n], raw)
		for i := len(raw); i < n; i++ {
			buf[1+i] = 0
		}
		binary.LittleEndian.PutUint32(buf[1+n:5+n], uint32(r.Offset))
	default:
		return nil, reldberr.New(reldberr.UnsupportedFormat, "indexrecord.Pack",
			fmt.Sprintf("format %s cannot be an index key", r.Format.Raw()), nil)
	}
	return buf, nil
}

// Unpack deserializes a Record of the given key format from buf.
func Unpack(buf []byte, format model.Format) (Record, error) {
	size, err := Size(format)
	if err != nil {
		return Record{}, err
	}
	if len(buf) < size {
		return Record{}, reldberr.New(reldberr.CorruptFile, "indexrecord.Unpack", "buffer too small", nil)
	}

	switch format.Kind {
	case model.KindInt:
		if buf[0] != tagInt {
			return Record{}, tagMismatch(tagInt, buf[0])
		}
		key := model.IntValue(int32(binary.LittleEndian.Uint32(buf[1:5])))
		offset := int32(binary.LittleEndian.Uint32(buf[5:9]))
		return Record{Format: format, Key: key, Offset: offset}, nil

	case model.KindFloat:
		if buf[0] != tagFloat {
			return Record{}, tagMismatch(tagFloat, buf[0])
		}
		key := model.FloatValue(math.Float32frombits(binary.LittleEndian.Uint32(buf[1:5])))
		offset := int32(binary.LittleEndian.Uint32(buf[5:9]))
		return Record{Format: format, Key: key, Offset: offset}, nil

	case model.KindString:
		if buf[0] != tagString {
			return Record{}, tagMismatch(tagString, buf[0])
		}
		n := format.N
		end := 0
		for end < n && buf[1+end] != 0 {
			end++
		}
		key := model.StringValue(n, string(buf[1:1+end]))
		offset := int32(binary.LittleEndian.Uint32(buf[1+n : 5+n]))
		return Record{Format: format, Key: key, Offset: offset}, nil

	default:
		return Record{}, reldberr.New(reldberr.UnsupportedFormat, "indexrecord.Unpack",
			fmt.Sprintf("format %s cannot be an index key", format.Raw()), nil)
	}
}

func tagMismatch(want, got byte) error {
	return reldberr.New(reldberr.CorruptFile, "indexrecord.Unpack",
		fmt.Sprintf("expected type tag %d, found %d", want, got), nil)
}
