// Package model implements the value/schema/record layer of reldb: the
// tagged value variants, ordered schema description, and fixed-length
// binary record packing described in spec §3.1-§3.3.
//
// Grounded on original_source/backend/database/storage/Record.py (the
// format-char table and pack/unpack semantics) and HundDB's
// model/record package for the general "small struct describing one
// stored row" idiom. Per the design notes, formats are expressed as a
// tagged enum (FormatKind) rather than dynamic typing.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatKind is the tag of a field format.
type FormatKind int

const (
	KindInt FormatKind = iota
	KindFloat
	KindBool
	KindString     // Ns: fixed-width N-byte utf-8 string
	KindFloatTuple // Nf: fixed tuple of N float32 (2D/3D point)
	KindIntTuple   // Ni: fixed tuple of N int32
	KindText       // stored externally; in-row value is a sidecar offset
	KindSound      // external opaque blob + histogram, two offsets
)

func (k FormatKind) String() string {
	switch k {
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindBool:
		return "BOOL"
	case KindString:
		return "STRING"
	case KindFloatTuple:
		return "FLOAT_TUPLE"
	case KindIntTuple:
		return "INT_TUPLE"
	case KindText:
		return "TEXT"
	case KindSound:
		return "SOUND"
	default:
		return "UNKNOWN"
	}
}

// Format is a parsed field format: a kind plus, for String/FloatTuple/
// IntTuple, the width/arity N.
type Format struct {
	Kind FormatKind
	N    int // byte width for String; element count for the tuple kinds
}

// Raw renders the format back to its wire tag ("INT", "20s", "4f", ...).
func (f Format) Raw() string {
	switch f.Kind {
	case KindInt:
		return "INT"
	case KindFloat:
		return "FLOAT"
	case KindBool:
		return "BOOL"
	case KindText:
		return "TEXT"
	case KindSound:
		return "SOUND"
	case KindString:
		return fmt.Sprintf("%ds", f.N)
	case KindFloatTuple:
		return fmt.Sprintf("%df", f.N)
	case KindIntTuple:
		return fmt.Sprintf("%di", f.N)
	default:
		return "UNKNOWN"
	}
}

// Size returns the fixed in-row byte size of a value of this format.
func (f Format) Size() int {
	switch f.Kind {
	case KindInt, KindFloat:
		return 4
	case KindBool:
		return 1
	case KindString:
		return f.N
	case KindFloatTuple, KindIntTuple:
		return 4 * f.N
	case KindText:
		return 4 // sidecar offset
	case KindSound:
		return 8 // two offsets
	default:
		return 0
	}
}

// IsScalarKey reports whether the format is usable as a primary key or
// as a B+tree/hash/sequential index key (spec §3.2: PK must be INT,
// FLOAT, or Ns).
func (f Format) IsScalarKey() bool {
	return f.Kind == KindInt || f.Kind == KindFloat || f.Kind == KindString
}

// ParseFormat parses a wire format tag: "INT", "FLOAT", "BOOL", "TEXT",
// "SOUND", "Ns", "Nf", or "Ni".
func ParseFormat(raw string) (Format, error) {
	upper := strings.ToUpper(raw)
	switch upper {
	case "INT":
		return Format{Kind: KindInt}, nil
	case "FLOAT":
		return Format{Kind: KindFloat}, nil
	case "BOOL":
		return Format{Kind: KindBool}, nil
	case "TEXT":
		return Format{Kind: KindText}, nil
	case "SOUND":
		return Format{Kind: KindSound}, nil
	}

	if len(raw) < 2 {
		return Format{}, fmt.Errorf("unrecognized format %q", raw)
	}

	suffix := raw[len(raw)-1]
	digits := raw[:len(raw)-1]
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return Format{}, fmt.Errorf("unrecognized format %q", raw)
	}

	switch suffix {
	case 's', 'S':
		return Format{Kind: KindString, N: n}, nil
	case 'f', 'F':
		return Format{Kind: KindFloatTuple, N: n}, nil
	case 'i', 'I':
		return Format{Kind: KindIntTuple, N: n}, nil
	default:
		return Format{}, fmt.Errorf("unrecognized format %q", raw)
	}
}
