package model

import (
	json "github.com/goccy/go-json"
)

// fieldJSON mirrors the schema file's on-disk shape: a field is written
// as its name, its raw format tag, and a primary-key flag, matching
// original_source's build_file schema dict.
type fieldJSON struct {
	Name      string `json:"name"`
	Format    string `json:"type"`
	PrimaryKey bool  `json:"is_primary_key"`
}

// MarshalJSON writes a Field using its raw wire format tag rather than
// the parsed Format struct.
func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(fieldJSON{
		Name:       f.Name,
		Format:     f.Format.Raw(),
		PrimaryKey: f.IsPrimaryKey,
	})
}

// UnmarshalJSON parses a Field from its on-disk shape, re-parsing the
// format tag into a Format.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw fieldJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	format, err := ParseFormat(raw.Format)
	if err != nil {
		return err
	}
	f.Name = raw.Name
	f.RawFormat = raw.Format
	f.Format = format
	f.IsPrimaryKey = raw.PrimaryKey
	return nil
}
