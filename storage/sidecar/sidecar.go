// Package sidecar implements the length-prefixed, append-only, logically
// deletable blob store that backs every TEXT and SOUND field (spec
// §4.2). Both formats share the exact same on-disk shape: a four-byte
// little-endian length prefix (or the sentinel -1 to mark a deleted
// entry) followed by that many raw bytes. TEXT stores UTF-8 text; SOUND
// uses one Store for its opaque blob and a second for its histogram
// sidecar.
//
// Grounded on original_source/backend/database/storage/TextFile.py and
// Sound.py, which are byte-for-byte the same format. The append-only,
// offset-addressed idiom generalizes HundDB's lsm/wal append-log
// pattern, simplified here because reldb has no block/fragmentation
// concept (spec §4.2 calls for one record per write, no size cap).
package sidecar

import (
	"encoding/binary"
	"os"

	"reldb/reldberr"
)

const (
	lengthPrefixSize = 4
	sentinelLength   = -1
)

// Store is an append-only, offset-addressed blob file with logical
// delete. One Store exists per (table, field) TEXT column, and per
// (table, field, blob|hist) SOUND sidecar.
type Store struct {
	path string
	file *os.File
}

// Build creates an empty sidecar file at path if one does not already
// exist. Safe to call repeatedly.
func Build(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return reldberr.New(reldberr.CorruptFile, "sidecar.Build", "stat sidecar file", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return reldberr.New(reldberr.CorruptFile, "sidecar.Build", "create sidecar file", err)
	}
	return f.Close()
}

// Open opens an existing sidecar file for read/write. Callers must call
// Build first if the file may not exist yet.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "sidecar.Open", "open sidecar file", err)
	}
	return &Store{path: path, file: f}, nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	if err := s.file.Close(); err != nil {
		return reldberr.New(reldberr.CorruptFile, "sidecar.Close", "close sidecar file", err)
	}
	return nil
}

// Insert appends payload to the store and returns the offset of the
// entry's length prefix, which becomes the in-row sidecar reference.
func (s *Store) Insert(payload []byte) (int64, error) {
	offset, err := s.file.Seek(0, os.SEEK_END)
	if err != nil {
		return 0, reldberr.New(reldberr.CorruptFile, "sidecar.Insert", "seek to end", err)
	}

	header := make([]byte, lengthPrefixSize)
	binary.LittleEndian.PutUint32(header, uint32(len(payload)))

	if _, err := s.file.Write(header); err != nil {
		return 0, reldberr.New(reldberr.CorruptFile, "sidecar.Insert", "write length prefix", err)
	}
	if _, err := s.file.Write(payload); err != nil {
		return 0, reldberr.New(reldberr.CorruptFile, "sidecar.Insert", "write payload", err)
	}
	return offset, nil
}

// InsertText is a convenience wrapper for TEXT fields.
func (s *Store) InsertText(text string) (int64, error) {
	return s.Insert([]byte(text))
}

// Delete marks the entry at offset as logically deleted by overwriting
// its length prefix with the sentinel.
func (s *Store) Delete(offset int64) error {
	if _, err := s.file.Seek(offset, os.SEEK_SET); err != nil {
		return reldberr.New(reldberr.CorruptFile, "sidecar.Delete", "seek to offset", err)
	}

	header := make([]byte, lengthPrefixSize)
	sentinel := int32(sentinelLength)
	binary.LittleEndian.PutUint32(header, uint32(sentinel))
	if _, err := s.file.Write(header); err != nil {
		return reldberr.New(reldberr.CorruptFile, "sidecar.Delete", "write sentinel", err)
	}
	return nil
}

// Read returns the payload at offset, or found=false if the entry was
// deleted or offset is past the current end of file.
func (s *Store) Read(offset int64) (payload []byte, found bool, err error) {
	info, err := s.file.Stat()
	if err != nil {
		return nil, false, reldberr.New(reldberr.CorruptFile, "sidecar.Read", "stat sidecar file", err)
	}
	if offset < 0 || offset >= info.Size() {
		return nil, false, nil
	}

	header := make([]byte, lengthPrefixSize)
	if _, err := s.file.ReadAt(header, offset); err != nil {
		return nil, false, reldberr.New(reldberr.CorruptFile, "sidecar.Read", "read length prefix", err)
	}

	n := int32(binary.LittleEndian.Uint32(header))
	if n == sentinelLength || n < 0 {
		return nil, false, nil
	}

	payload = make([]byte, n)
	if _, err := s.file.ReadAt(payload, offset+lengthPrefixSize); err != nil {
		return nil, false, reldberr.New(reldberr.CorruptFile, "sidecar.Read", "read payload", err)
	}
	return payload, true, nil
}

// ReadText is a convenience wrapper for TEXT fields.
func (s *Store) ReadText(offset int64) (string, bool, error) {
	payload, found, err := s.Read(offset)
	if err != nil || !found {
		return "", found, err
	}
	return string(payload), true, nil
}
