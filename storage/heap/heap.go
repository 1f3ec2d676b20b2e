// Package heap implements reldb's primary storage structure: a
// fixed-slot heap file with an internal free list (spec §3.4-§3.6,
// §4.1).
//
// Grounded on original_source/backend/database/storage/HeapFile.py,
// carrying over its exact on-disk shape (header, slot = record-data +
// next_free pointer, single-pass PK duplicate scan, free-list reuse)
// reexpressed with fixed-width binary.Read/Write instead of Python's
// struct module. The logging/Config injection idiom follows
// iamNilotpal-ignite's internal/storage.Config (Logger *zap.SugaredLogger,
// nil-safe default).
package heap

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"reldb/model"
	"reldb/reldberr"
	"reldb/storage/sidecar"
)

const (
	headerSize = 8 // heap_size:i32, free_head:i32
	ptrSize    = 4 // next_free
	freeListEnd = -1
)

// BlobSidecarKey and HistSidecarKey name the two sidecarPaths map
// entries a SOUND field needs: one opaque-blob store and one histogram
// store, sharing the same length-prefixed sidecar format as TEXT
// (spec §3.1, §4.2).
func BlobSidecarKey(field string) string { return field + ".blob" }
func HistSidecarKey(field string) string { return field + ".hist" }

// Config configures a File's dependencies.
type Config struct {
	Logger *zap.SugaredLogger
}

func (c *Config) logger() *zap.SugaredLogger {
	if c == nil || c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

// File is an open heap file plus its sidecar stores for TEXT and SOUND
// fields.
type File struct {
	path     string
	schema   *model.Schema
	file     *os.File
	recSize  int
	slotSize int
	heapSize int32
	freeHead int32
	sidecars map[string]*sidecar.Store // field name (TEXT), or Blob/HistSidecarKey (SOUND) -> sidecar
	pkFilter *bloom.BloomFilter        // nil if schema has no PK
	log      *zap.SugaredLogger
}

// Build creates an empty heap file at path with the given schema, plus
// a sidecar file for every TEXT field and a blob+histogram pair for
// every SOUND field (spec §4.1 "Create", §3.1).
func Build(path string, schema *model.Schema, sidecarPaths map[string]string) error {
	if err := schema.Validate(); err != nil {
		return reldberr.New(reldberr.SchemaMismatch, "heap.Build", "invalid schema", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return reldberr.New(reldberr.CorruptFile, "heap.Build", "create heap file", err)
	}
	defer f.Close()

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], 0)
	freeHead := int32(freeListEnd)
	binary.LittleEndian.PutUint32(header[4:8], uint32(freeHead))
	if _, err := f.Write(header); err != nil {
		return reldberr.New(reldberr.CorruptFile, "heap.Build", "write header", err)
	}

	for _, field := range schema.Fields {
		switch field.Format.Kind {
		case model.KindText:
			sp, ok := sidecarPaths[field.Name]
			if !ok {
				return reldberr.New(reldberr.SchemaMismatch, "heap.Build",
					fmt.Sprintf("missing sidecar path for TEXT field %q", field.Name), nil)
			}
			if err := sidecar.Build(sp); err != nil {
				return err
			}
		case model.KindSound:
			for _, key := range []string{BlobSidecarKey(field.Name), HistSidecarKey(field.Name)} {
				sp, ok := sidecarPaths[key]
				if !ok {
					return reldberr.New(reldberr.SchemaMismatch, "heap.Build",
						fmt.Sprintf("missing sidecar path %q for SOUND field %q", key, field.Name), nil)
				}
				if err := sidecar.Build(sp); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Open opens an existing heap file, loading its header and rebuilding
// the in-memory PK Bloom filter accelerator by scanning all live slots.
func Open(path string, schema *model.Schema, sidecarPaths map[string]string, cfg *Config) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "heap.Open", "open heap file", err)
	}

	header := make([]byte, headerSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, reldberr.New(reldberr.CorruptFile, "heap.Open", "read header", err)
	}

	hf := &File{
		path:     path,
		schema:   schema,
		file:     f,
		recSize:  schema.RowSize(),
		heapSize: int32(binary.LittleEndian.Uint32(header[0:4])),
		freeHead: int32(binary.LittleEndian.Uint32(header[4:8])),
		sidecars: make(map[string]*sidecar.Store),
		log:      cfg.logger(),
	}
	hf.slotSize = hf.recSize + ptrSize

	for _, field := range schema.Fields {
		switch field.Format.Kind {
		case model.KindText:
			sp, ok := sidecarPaths[field.Name]
			if !ok {
				f.Close()
				return nil, reldberr.New(reldberr.SchemaMismatch, "heap.Open",
					fmt.Sprintf("missing sidecar path for TEXT field %q", field.Name), nil)
			}
			store, err := sidecar.Open(sp)
			if err != nil {
				f.Close()
				return nil, err
			}
			hf.sidecars[field.Name] = store
		case model.KindSound:
			for _, key := range []string{BlobSidecarKey(field.Name), HistSidecarKey(field.Name)} {
				sp, ok := sidecarPaths[key]
				if !ok {
					f.Close()
					return nil, reldberr.New(reldberr.SchemaMismatch, "heap.Open",
						fmt.Sprintf("missing sidecar path %q for SOUND field %q", key, field.Name), nil)
				}
				store, err := sidecar.Open(sp)
				if err != nil {
					f.Close()
					return nil, err
				}
				hf.sidecars[key] = store
			}
		}
	}

	if _, ok := schema.PrimaryKey(); ok {
		if err := hf.rebuildBloomFilter(); err != nil {
			f.Close()
			return nil, err
		}
	}

	hf.log.Infow("heap file opened", "path", path, "heap_size", hf.heapSize)
	return hf, nil
}

// Close closes the heap file and all its TEXT sidecars.
func (f *File) Close() error {
	for _, s := range f.sidecars {
		if err := s.Close(); err != nil {
			return err
		}
	}
	if err := f.file.Close(); err != nil {
		return reldberr.New(reldberr.CorruptFile, "heap.Close", "close heap file", err)
	}
	return nil
}

func (f *File) pkIndex() (int, bool) {
	pk, ok := f.schema.PrimaryKey()
	if !ok {
		return 0, false
	}
	for i, field := range f.schema.Fields {
		if field.Name == pk.Name {
			return i, true
		}
	}
	return 0, false
}

func pkKeyBytes(v model.Value) []byte {
	switch v.Format.Kind {
	case model.KindInt:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v.Int))
		return b
	case model.KindFloat:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(v.Float))
		return b
	default:
		return []byte(v.Str)
	}
}

func (f *File) rebuildBloomFilter() error {
	pkIdx, ok := f.pkIndex()
	if !ok {
		return nil
	}

	estimate := uint(f.heapSize)
	if estimate < 1024 {
		estimate = 1024
	}
	filter := bloom.NewWithEstimates(estimate, 0.01)

	if _, err := f.file.Seek(headerSize, os.SEEK_SET); err != nil {
		return reldberr.New(reldberr.CorruptFile, "heap.rebuildBloomFilter", "seek", err)
	}
	buf := make([]byte, f.recSize)
	for i := int32(0); i < f.heapSize; i++ {
		if _, err := f.file.Read(buf); err != nil {
			return reldberr.New(reldberr.CorruptFile, "heap.rebuildBloomFilter", "read slot", err)
		}
		rec, err := model.Unpack(buf, f.schema)
		if err != nil {
			return err
		}
		pk := rec.Values[pkIdx]
		if !model.IsSentinel(pk) {
			filter.Add(pkKeyBytes(pk))
		}
		if _, err := f.file.Seek(ptrSize, os.SEEK_CUR); err != nil {
			return reldberr.New(reldberr.CorruptFile, "heap.rebuildBloomFilter", "skip next_free", err)
		}
	}
	f.pkFilter = filter
	return nil
}

func (f *File) writeHeader() error {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], uint32(f.heapSize))
	binary.LittleEndian.PutUint32(header[4:8], uint32(f.freeHead))
	if _, err := f.file.WriteAt(header, 0); err != nil {
		return reldberr.New(reldberr.CorruptFile, "heap.writeHeader", "write header", err)
	}
	return nil
}

func (f *File) slotOffset(pos int32) int64 {
	return headerSize + int64(pos)*int64(f.slotSize)
}

// processSidecarFields appends every TEXT/SOUND field's payload to its
// sidecar(s), replacing the in-row value with the returned offset(s).
func (f *File) processSidecarFields(rec *model.Record) error {
	for i, field := range f.schema.Fields {
		switch field.Format.Kind {
		case model.KindText:
			store := f.sidecars[field.Name]
			offset, err := store.InsertText(rec.Values[i].Str)
			if err != nil {
				return err
			}
			rec.Values[i] = model.TextOffsetValue(int32(offset))
		case model.KindSound:
			blobStore := f.sidecars[BlobSidecarKey(field.Name)]
			histStore := f.sidecars[HistSidecarKey(field.Name)]
			blobOff, err := blobStore.Insert(rec.Values[i].Bytes)
			if err != nil {
				return err
			}
			histOff, err := histStore.Insert(rec.Values[i].Hist)
			if err != nil {
				return err
			}
			rec.Values[i] = model.SoundOffsetValue(int32(blobOff), int32(histOff))
		}
	}
	return nil
}

// scanForDuplicatePK performs the single-pass PK duplicate check
// required by spec §4.1 step 2, regardless of what the Bloom filter
// says; the filter only decides whether to skip straight past this
// scan for a negative membership answer.
func (f *File) scanForDuplicatePK(pkIdx int, pkVal model.Value) (bool, error) {
	if _, err := f.file.Seek(headerSize, os.SEEK_SET); err != nil {
		return false, reldberr.New(reldberr.CorruptFile, "heap.scanForDuplicatePK", "seek", err)
	}
	buf := make([]byte, f.recSize)
	for i := int32(0); i < f.heapSize; i++ {
		n, err := f.file.Read(buf)
		if err != nil || n < f.recSize {
			break
		}
		rec, err := model.Unpack(buf, f.schema)
		if err != nil {
			return false, err
		}
		if model.Equal(rec.Values[pkIdx], pkVal) {
			return true, nil
		}
		if _, err := f.file.Seek(ptrSize, os.SEEK_CUR); err != nil {
			return false, reldberr.New(reldberr.CorruptFile, "heap.scanForDuplicatePK", "skip next_free", err)
		}
	}
	return false, nil
}

// Insert performs the PK-checked insert of spec §4.1.
func (f *File) Insert(rec *model.Record) (int32, error) {
	if len(rec.Values) != len(f.schema.Fields) {
		return 0, reldberr.New(reldberr.SchemaMismatch, "heap.Insert", "record does not match schema", nil)
	}

	pkIdx, hasPK := f.pkIndex()
	if hasPK {
		pkVal := rec.Values[pkIdx]
		if model.IsSentinel(pkVal) {
			return 0, reldberr.New(reldberr.SentinelNotAllowed, "heap.Insert", "sentinel value not allowed in primary key", nil)
		}

		// The Bloom filter is a pure accelerator: a negative membership
		// answer proves absence and lets us skip the mandatory scan; a
		// positive answer (possibly a false positive) still requires the
		// full scan to confirm, so observable behavior matches spec §4.1
		// step 2 exactly either way.
		maybePresent := f.pkFilter == nil || f.pkFilter.Test(pkKeyBytes(pkVal))
		if maybePresent {
			dup, err := f.scanForDuplicatePK(pkIdx, pkVal)
			if err != nil {
				return 0, err
			}
			if dup {
				return 0, reldberr.New(reldberr.DuplicateKey, "heap.Insert", fmt.Sprintf("duplicate primary key %v", pkVal), nil)
			}
		}
	}

	return f.insertFree(rec, hasPK, pkIdx)
}

// InsertFree performs the unchecked insert of spec §4.1 ("free
// insert"): skips the PK duplicate scan entirely.
func (f *File) InsertFree(rec *model.Record) (int32, error) {
	if len(rec.Values) != len(f.schema.Fields) {
		return 0, reldberr.New(reldberr.SchemaMismatch, "heap.InsertFree", "record does not match schema", nil)
	}
	pkIdx, hasPK := f.pkIndex()
	return f.insertFree(rec, hasPK, pkIdx)
}

func (f *File) insertFree(rec *model.Record, hasPK bool, pkIdx int) (int32, error) {
	if err := f.processSidecarFields(rec); err != nil {
		return 0, err
	}

	buf, err := rec.Pack()
	if err != nil {
		return 0, err
	}

	var slotOff int32
	if f.freeHead == freeListEnd {
		slotOff = f.heapSize
		if _, err := f.file.WriteAt(buf, f.slotOffset(slotOff)); err != nil {
			return 0, reldberr.New(reldberr.CorruptFile, "heap.insertFree", "write new slot", err)
		}
		nextFree := make([]byte, ptrSize)
		binary.LittleEndian.PutUint32(nextFree, 0)
		if _, err := f.file.WriteAt(nextFree, f.slotOffset(slotOff)+int64(f.recSize)); err != nil {
			return 0, reldberr.New(reldberr.CorruptFile, "heap.insertFree", "write next_free", err)
		}
		f.heapSize++
	} else {
		slotOff = f.freeHead
		byteOff := f.slotOffset(slotOff)
		nextFreeBuf := make([]byte, ptrSize)
		if _, err := f.file.ReadAt(nextFreeBuf, byteOff+int64(f.recSize)); err != nil {
			return 0, reldberr.New(reldberr.CorruptFile, "heap.insertFree", "read next_free", err)
		}
		f.freeHead = int32(binary.LittleEndian.Uint32(nextFreeBuf))

		if _, err := f.file.WriteAt(buf, byteOff); err != nil {
			return 0, reldberr.New(reldberr.CorruptFile, "heap.insertFree", "write reused slot", err)
		}
		nextFree := make([]byte, ptrSize)
		binary.LittleEndian.PutUint32(nextFree, 0)
		if _, err := f.file.WriteAt(nextFree, byteOff+int64(f.recSize)); err != nil {
			return 0, reldberr.New(reldberr.CorruptFile, "heap.insertFree", "write next_free", err)
		}
	}

	if err := f.writeHeader(); err != nil {
		return 0, err
	}

	if hasPK && f.pkFilter != nil {
		f.pkFilter.Add(pkKeyBytes(rec.Values[pkIdx]))
	}

	f.log.Infow("heap insert", "offset", slotOff, "table", f.schema.TableName)
	return slotOff, nil
}

// DeleteByPK performs spec §4.1's "Delete by PK".
func (f *File) DeleteByPK(key model.Value) (ok bool, offset int32, old *model.Record, err error) {
	pkIdx, hasPK := f.pkIndex()
	if !hasPK {
		return false, 0, nil, reldberr.New(reldberr.NoPrimaryKey, "heap.DeleteByPK", "table has no primary key", nil)
	}

	buf := make([]byte, f.recSize)
	for pos := int32(0); pos < f.heapSize; pos++ {
		byteOff := f.slotOffset(pos)
		if _, rerr := f.file.ReadAt(buf, byteOff); rerr != nil {
			return false, 0, nil, reldberr.New(reldberr.CorruptFile, "heap.DeleteByPK", "read slot", rerr)
		}
		rec, uerr := model.Unpack(buf, f.schema)
		if uerr != nil {
			return false, 0, nil, uerr
		}
		if !model.Equal(rec.Values[pkIdx], key) {
			continue
		}

		oldRec := *rec
		oldRec.Values = append([]model.Value(nil), rec.Values...)

		for i, field := range f.schema.Fields {
			switch field.Format.Kind {
			case model.KindText:
				store := f.sidecars[field.Name]
				if derr := store.Delete(int64(oldRec.Values[i].Int)); derr != nil {
					return false, 0, nil, derr
				}
			case model.KindSound:
				blobStore := f.sidecars[BlobSidecarKey(field.Name)]
				histStore := f.sidecars[HistSidecarKey(field.Name)]
				if derr := blobStore.Delete(int64(oldRec.Values[i].Ints[0])); derr != nil {
					return false, 0, nil, derr
				}
				if derr := histStore.Delete(int64(oldRec.Values[i].Ints[1])); derr != nil {
					return false, 0, nil, derr
				}
			}
		}

		sentinel, _ := model.Sentinel(f.schema.Fields[pkIdx].Format)
		rec.Values[pkIdx] = sentinel
		packed, perr := rec.Pack()
		if perr != nil {
			return false, 0, nil, perr
		}
		if _, werr := f.file.WriteAt(packed, byteOff); werr != nil {
			return false, 0, nil, reldberr.New(reldberr.CorruptFile, "heap.DeleteByPK", "write tombstone", werr)
		}

		nextFree := make([]byte, ptrSize)
		binary.LittleEndian.PutUint32(nextFree, uint32(f.freeHead))
		if _, werr := f.file.WriteAt(nextFree, byteOff+int64(f.recSize)); werr != nil {
			return false, 0, nil, reldberr.New(reldberr.CorruptFile, "heap.DeleteByPK", "write next_free", werr)
		}
		f.freeHead = pos

		if werr := f.writeHeader(); werr != nil {
			return false, 0, nil, werr
		}

		f.log.Infow("heap delete", "offset", pos, "table", f.schema.TableName)
		return true, pos, materializeSidecarFields(f, &oldRec), nil
	}
	return false, 0, nil, nil
}

func materializeSidecarFields(f *File, rec *model.Record) *model.Record {
	for i, field := range f.schema.Fields {
		switch field.Format.Kind {
		case model.KindText:
			store := f.sidecars[field.Name]
			text, found, err := store.ReadText(int64(rec.Values[i].Int))
			if err != nil || !found {
				continue
			}
			v := rec.Values[i]
			v.Materialized = true
			v.Bytes = []byte(text)
			v.Str = text
			rec.Values[i] = v
		case model.KindSound:
			if len(rec.Values[i].Ints) != 2 {
				continue
			}
			blobStore := f.sidecars[BlobSidecarKey(field.Name)]
			histStore := f.sidecars[HistSidecarKey(field.Name)]
			blob, found, err := blobStore.Read(int64(rec.Values[i].Ints[0]))
			if err != nil || !found {
				continue
			}
			hist, _, err := histStore.Read(int64(rec.Values[i].Ints[1]))
			if err != nil {
				continue
			}
			v := rec.Values[i]
			v.Materialized = true
			v.Bytes = blob
			v.Hist = hist
			rec.Values[i] = v
		}
	}
	return rec
}

// SearchByField performs spec §4.1's "Search by field": a linear scan
// over live slots comparing the named field, stopping early only when
// the queried field is the primary key.
func (f *File) SearchByField(fieldName string, value model.Value) ([]*model.Record, error) {
	fldIdx := -1
	for i, field := range f.schema.Fields {
		if field.Name == fieldName {
			fldIdx = i
			break
		}
	}
	if fldIdx == -1 {
		return nil, reldberr.New(reldberr.UnknownField, "heap.SearchByField", fmt.Sprintf("field %q not in schema", fieldName), nil)
	}

	pkIdx, hasPK := f.pkIndex()
	stopEarly := hasPK && f.schema.Fields[pkIdx].Name == fieldName

	var results []*model.Record
	if _, err := f.file.Seek(headerSize, os.SEEK_SET); err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "heap.SearchByField", "seek", err)
	}
	buf := make([]byte, f.recSize)
	for i := int32(0); i < f.heapSize; i++ {
		n, err := f.file.Read(buf)
		if err != nil || n < f.recSize {
			break
		}
		rec, uerr := model.Unpack(buf, f.schema)
		if uerr != nil {
			return nil, uerr
		}

		if hasPK && model.IsSentinel(rec.Values[pkIdx]) {
			f.file.Seek(ptrSize, os.SEEK_CUR)
			continue
		}

		if model.Equal(rec.Values[fldIdx], value) {
			results = append(results, materializeSidecarFields(f, rec))
			if stopEarly {
				break
			}
		}
		if _, err := f.file.Seek(ptrSize, os.SEEK_CUR); err != nil {
			return nil, reldberr.New(reldberr.CorruptFile, "heap.SearchByField", "skip next_free", err)
		}
	}
	return results, nil
}

// FetchByOffset performs spec §4.1's "Fetch by offset".
func (f *File) FetchByOffset(pos int32) (*model.Record, error) {
	if pos < 0 || pos >= f.heapSize {
		return nil, reldberr.New(reldberr.OutOfRange, "heap.FetchByOffset", fmt.Sprintf("offset %d out of range [0,%d)", pos, f.heapSize), nil)
	}

	buf := make([]byte, f.recSize)
	if _, err := f.file.ReadAt(buf, f.slotOffset(pos)); err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "heap.FetchByOffset", "read slot", err)
	}
	rec, err := model.Unpack(buf, f.schema)
	if err != nil {
		return nil, err
	}
	return materializeSidecarFields(f, rec), nil
}

// IndexEntry is a (value, offset) pair emitted by ExtractIndex.
type IndexEntry struct {
	Value  model.Value
	Offset int32
}

// ExtractIndex performs spec §4.1's "Extract-index": a linear scan
// emitting (value, offset) for every live slot, used to bulk-load
// secondary indexes.
func (f *File) ExtractIndex(fieldName string) ([]IndexEntry, error) {
	fldIdx := -1
	for i, field := range f.schema.Fields {
		if field.Name == fieldName {
			fldIdx = i
			break
		}
	}
	if fldIdx == -1 {
		return nil, reldberr.New(reldberr.UnknownField, "heap.ExtractIndex", fmt.Sprintf("field %q not in schema", fieldName), nil)
	}

	pkIdx, hasPK := f.pkIndex()

	var out []IndexEntry
	if _, err := f.file.Seek(headerSize, os.SEEK_SET); err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "heap.ExtractIndex", "seek", err)
	}
	buf := make([]byte, f.recSize)
	for pos := int32(0); pos < f.heapSize; pos++ {
		n, err := f.file.Read(buf)
		if err != nil || n < f.recSize {
			break
		}
		rec, uerr := model.Unpack(buf, f.schema)
		if uerr != nil {
			return nil, uerr
		}
		if hasPK && model.IsSentinel(rec.Values[pkIdx]) {
			f.file.Seek(ptrSize, os.SEEK_CUR)
			continue
		}
		out = append(out, IndexEntry{Value: rec.Values[fldIdx], Offset: pos})
		if _, err := f.file.Seek(ptrSize, os.SEEK_CUR); err != nil {
			return nil, reldberr.New(reldberr.CorruptFile, "heap.ExtractIndex", "skip next_free", err)
		}
	}
	return out, nil
}

// TextDocument pairs a live record's primary-key value with the
// concatenation of all its TEXT fields, in field order, space-joined
// (spec §4.8 "Preprocessing" source data).
type TextDocument struct {
	DocID int32
	Text  string
}

// IterateTextDocuments returns (doc_id, text) for every live record,
// concatenating every TEXT field into one string. Grounded on
// original_source HeapFile.iterate_text_documents, including its detail
// that doc_id is the record's primary-key value, not its heap offset.
func (f *File) IterateTextDocuments() ([]TextDocument, error) {
	pkIdx, hasPK := f.pkIndex()
	if !hasPK {
		return nil, reldberr.New(reldberr.NoPrimaryKey, "heap.IterateTextDocuments", "table has no primary key", nil)
	}
	if f.schema.Fields[pkIdx].Format.Kind != model.KindInt {
		return nil, reldberr.New(reldberr.TypeMismatch, "heap.IterateTextDocuments", "primary key must be INT to serve as a SPIMI doc id", nil)
	}

	var textIdx []int
	for i, field := range f.schema.Fields {
		if field.Format.Kind == model.KindText {
			textIdx = append(textIdx, i)
		}
	}
	if len(textIdx) == 0 {
		return nil, reldberr.New(reldberr.SchemaMismatch, "heap.IterateTextDocuments", "schema has no TEXT field", nil)
	}

	if _, err := f.file.Seek(headerSize, os.SEEK_SET); err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "heap.IterateTextDocuments", "seek", err)
	}
	var out []TextDocument
	buf := make([]byte, f.recSize)
	for pos := int32(0); pos < f.heapSize; pos++ {
		n, err := f.file.Read(buf)
		if err != nil || n < f.recSize {
			break
		}
		rec, uerr := model.Unpack(buf, f.schema)
		if uerr != nil {
			return nil, uerr
		}
		if model.IsSentinel(rec.Values[pkIdx]) {
			f.file.Seek(ptrSize, os.SEEK_CUR)
			continue
		}

		parts := make([]string, 0, len(textIdx))
		for _, idx := range textIdx {
			store := f.sidecars[f.schema.Fields[idx].Name]
			text, found, err := store.ReadText(int64(rec.Values[idx].Int))
			if err != nil {
				return nil, err
			}
			if found {
				parts = append(parts, text)
			}
		}
		out = append(out, TextDocument{DocID: rec.Values[pkIdx].Int, Text: strings.Join(parts, " ")})

		if _, err := f.file.Seek(ptrSize, os.SEEK_CUR); err != nil {
			return nil, reldberr.New(reldberr.CorruptFile, "heap.IterateTextDocuments", "skip next_free", err)
		}
	}
	return out, nil
}

// HeapSize returns the current heap_size header value.
func (f *File) HeapSize() int32 { return f.heapSize }

// Schema returns the table schema this file was opened with.
func (f *File) Schema() *model.Schema { return f.schema }
