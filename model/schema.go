package model

import "fmt"

// Field describes one column of a table: its name, parsed format, and
// whether it is the table's primary key (spec §3.2).
type Field struct {
	Name         string
	Format       Format
	RawFormat    string // original wire tag, kept for schema-file round-trips
	IsPrimaryKey bool
}

// Schema is an ordered list of fields, stored and loaded as a small JSON
// file next to the heap file (spec §3.2), grounded on original_source's
// HeapFile.py build_file schema JSON shape.
type Schema struct {
	TableName string  `json:"table_name"`
	Fields    []Field `json:"fields"`
}

// FieldByName returns the field with the given name, or ok=false.
func (s *Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PrimaryKey returns the schema's primary-key field, or ok=false if the
// table has none.
func (s *Schema) PrimaryKey() (Field, bool) {
	for _, f := range s.Fields {
		if f.IsPrimaryKey {
			return f, true
		}
	}
	return Field{}, false
}

// RowSize returns the fixed in-row byte width of a record matching this
// schema (the sum of each field's Format.Size()).
func (s *Schema) RowSize() int {
	size := 0
	for _, f := range s.Fields {
		size += f.Format.Size()
	}
	return size
}

// Validate enforces spec §3.2: at most one primary key, and the PK's
// format must be usable as a scalar key (INT, FLOAT, or Ns).
func (s *Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q: must declare at least one field", s.TableName)
	}

	seen := make(map[string]struct{}, len(s.Fields))
	pkCount := 0
	for _, f := range s.Fields {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %q: duplicate field name %q", s.TableName, f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.IsPrimaryKey {
			pkCount++
			if !f.Format.IsScalarKey() {
				return fmt.Errorf("schema %q: primary key %q must be INT, FLOAT, or Ns, got %s",
					s.TableName, f.Name, f.Format.Raw())
			}
		}
	}

	if pkCount > 1 {
		return fmt.Errorf("schema %q: at most one primary key is allowed, found %d", s.TableName, pkCount)
	}

	return nil
}
