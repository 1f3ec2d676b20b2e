package model

import "testing"

func TestParseFormatScalars(t *testing.T) {
	cases := map[string]FormatKind{
		"INT":   KindInt,
		"float": KindFloat,
		"BOOL":  KindBool,
		"Text":  KindText,
		"sound": KindSound,
	}
	for raw, want := range cases {
		f, err := ParseFormat(raw)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", raw, err)
		}
		if f.Kind != want {
			t.Errorf("ParseFormat(%q) = %v, want %v", raw, f.Kind, want)
		}
	}
}

func TestParseFormatTuples(t *testing.T) {
	f, err := ParseFormat("20s")
	if err != nil {
		t.Fatalf("ParseFormat(20s): %v", err)
	}
	if f.Kind != KindString || f.N != 20 {
		t.Errorf("got %+v, want KindString N=20", f)
	}

	f, err = ParseFormat("3f")
	if err != nil {
		t.Fatalf("ParseFormat(3f): %v", err)
	}
	if f.Kind != KindFloatTuple || f.N != 3 {
		t.Errorf("got %+v, want KindFloatTuple N=3", f)
	}

	f, err = ParseFormat("2i")
	if err != nil {
		t.Fatalf("ParseFormat(2i): %v", err)
	}
	if f.Kind != KindIntTuple || f.N != 2 {
		t.Errorf("got %+v, want KindIntTuple N=2", f)
	}
}

func TestParseFormatInvalid(t *testing.T) {
	for _, raw := range []string{"", "x", "0s", "-1f", "garbage"} {
		if _, err := ParseFormat(raw); err == nil {
			t.Errorf("ParseFormat(%q) expected error, got nil", raw)
		}
	}
}

func TestFormatRawRoundTrip(t *testing.T) {
	cases := []string{"INT", "FLOAT", "BOOL", "TEXT", "SOUND", "20s", "3f", "2i"}
	for _, raw := range cases {
		f, err := ParseFormat(raw)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", raw, err)
		}
		if got := f.Raw(); got != raw {
			t.Errorf("Raw() round-trip: ParseFormat(%q).Raw() = %q", raw, got)
		}
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		raw  string
		size int
	}{
		{"INT", 4}, {"FLOAT", 4}, {"BOOL", 1}, {"TEXT", 4}, {"SOUND", 8},
		{"20s", 20}, {"3f", 12}, {"2i", 8},
	}
	for _, c := range cases {
		f, err := ParseFormat(c.raw)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", c.raw, err)
		}
		if f.Size() != c.size {
			t.Errorf("Format(%q).Size() = %d, want %d", c.raw, f.Size(), c.size)
		}
	}
}

func TestIsScalarKey(t *testing.T) {
	scalars := []string{"INT", "FLOAT", "20s"}
	for _, raw := range scalars {
		f, _ := ParseFormat(raw)
		if !f.IsScalarKey() {
			t.Errorf("%q should be a scalar key format", raw)
		}
	}

	nonScalars := []string{"BOOL", "TEXT", "SOUND", "3f", "2i"}
	for _, raw := range nonScalars {
		f, _ := ParseFormat(raw)
		if f.IsScalarKey() {
			t.Errorf("%q should not be a scalar key format", raw)
		}
	}
}
