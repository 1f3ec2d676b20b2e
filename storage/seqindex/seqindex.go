// Package seqindex implements the sequential (sorted-main +
// auxiliary-overflow) secondary index of spec §4.3.
//
// Grounded on original_source/backend/database/indexing/
// SequentialIndex.py: binary search over a sorted main area, a small
// unsorted aux area for recent inserts, and an atomic temp-file+rename
// rebuild once aux overflows. The rebuild idiom generalizes HundDB's
// utils/config save-then-persist pattern to a merge-sort rebuild.
package seqindex

import (
	"encoding/binary"
	"math"
	"os"
	"sort"

	"go.uber.org/zap"

	"reldb/indexrecord"
	"reldb/model"
	"reldb/reldberr"
)

const metadataSize = 12 // main_size, aux_size, max_aux_size: i32x3

// Config configures an Index's dependencies.
type Config struct {
	Logger *zap.SugaredLogger
}

func (c *Config) logger() *zap.SugaredLogger {
	if c == nil || c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

// Index is an open sequential index file for one (table, field) pair.
type Index struct {
	path       string
	format     model.Format
	recSize    int
	mainSize   int32
	auxSize    int32
	maxAuxSize int32
	file       *os.File
	log        *zap.SugaredLogger
}

// Build writes a new sequential index file from already-extracted
// (key, offset) entries, sorting them and sizing the aux area as
// max(1, floor(log2(main_size))) (spec §4.3 "Build").
func Build(path string, format model.Format, entries []indexrecord.Record) error {
	sorted := append([]indexrecord.Record(nil), entries...)
	sortRecords(sorted)

	mainSize := int32(len(sorted))
	maxAux := maxAuxSizeFor(mainSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return reldberr.New(reldberr.CorruptFile, "seqindex.Build", "create index file", err)
	}
	defer f.Close()

	if err := writeMetadata(f, mainSize, 0, maxAux); err != nil {
		return err
	}

	for _, rec := range sorted {
		buf, err := indexrecord.Pack(rec)
		if err != nil {
			return err
		}
		if _, err := f.Write(buf); err != nil {
			return reldberr.New(reldberr.CorruptFile, "seqindex.Build", "write main record", err)
		}
	}

	sentinel, ok := model.Sentinel(format)
	if !ok {
		return reldberr.New(reldberr.UnsupportedFormat, "seqindex.Build", "format has no sentinel for empty aux slots", nil)
	}
	emptyRec := indexrecord.Record{Format: format, Key: sentinel, Offset: 0}
	emptyBuf, err := indexrecord.Pack(emptyRec)
	if err != nil {
		return err
	}
	for i := int32(0); i < maxAux; i++ {
		if _, err := f.Write(emptyBuf); err != nil {
			return reldberr.New(reldberr.CorruptFile, "seqindex.Build", "write aux slot", err)
		}
	}

	return nil
}

func maxAuxSizeFor(mainSize int32) int32 {
	if mainSize <= 0 {
		return 1
	}
	v := int32(math.Floor(math.Log2(float64(mainSize))))
	if v < 1 {
		return 1
	}
	return v
}

func sortRecords(recs []indexrecord.Record) {
	sort.Slice(recs, func(i, j int) bool {
		return model.Compare(recs[i].Key, recs[j].Key) < 0
	})
}

func writeMetadata(f *os.File, mainSize, auxSize, maxAuxSize int32) error {
	buf := make([]byte, metadataSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(mainSize))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(auxSize))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(maxAuxSize))
	if _, err := f.WriteAt(buf, 0); err != nil {
		return reldberr.New(reldberr.CorruptFile, "seqindex.writeMetadata", "write metadata", err)
	}
	return nil
}

// Open opens an existing sequential index file.
func Open(path string, format model.Format, cfg *Config) (*Index, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "seqindex.Open", "open index file", err)
	}

	meta := make([]byte, metadataSize)
	if _, err := f.ReadAt(meta, 0); err != nil {
		f.Close()
		return nil, reldberr.New(reldberr.CorruptFile, "seqindex.Open", "read metadata", err)
	}

	recSize, err := indexrecord.Size(format)
	if err != nil {
		f.Close()
		return nil, err
	}

	idx := &Index{
		path:       path,
		format:     format,
		recSize:    recSize,
		mainSize:   int32(binary.LittleEndian.Uint32(meta[0:4])),
		auxSize:    int32(binary.LittleEndian.Uint32(meta[4:8])),
		maxAuxSize: int32(binary.LittleEndian.Uint32(meta[8:12])),
		file:       f,
		log:        cfg.logger(),
	}
	return idx, nil
}

// Close closes the index file.
func (idx *Index) Close() error {
	if err := idx.file.Close(); err != nil {
		return reldberr.New(reldberr.CorruptFile, "seqindex.Close", "close index file", err)
	}
	return nil
}

func (idx *Index) mainOffset(pos int32) int64 {
	return metadataSize + int64(pos)*int64(idx.recSize)
}

func (idx *Index) auxOffset(pos int32) int64 {
	return metadataSize + int64(idx.mainSize)*int64(idx.recSize) + int64(pos)*int64(idx.recSize)
}

func (idx *Index) readAt(off int64) (indexrecord.Record, error) {
	buf := make([]byte, idx.recSize)
	if _, err := idx.file.ReadAt(buf, off); err != nil {
		return indexrecord.Record{}, reldberr.New(reldberr.CorruptFile, "seqindex.readAt", "read record", err)
	}
	return indexrecord.Unpack(buf, idx.format)
}

func (idx *Index) isDeleted(rec indexrecord.Record) bool {
	return model.IsSentinel(rec.Key)
}

// Insert appends to the aux area, rebuilding if it then overflows
// max_aux_size (spec §4.3 "Insert").
func (idx *Index) Insert(rec indexrecord.Record) error {
	buf, err := indexrecord.Pack(rec)
	if err != nil {
		return err
	}
	pos := idx.auxOffset(idx.auxSize)
	if _, err := idx.file.WriteAt(buf, pos); err != nil {
		return reldberr.New(reldberr.CorruptFile, "seqindex.Insert", "write aux record", err)
	}
	idx.auxSize++
	if err := writeMetadata(idx.file, idx.mainSize, idx.auxSize, idx.maxAuxSize); err != nil {
		return err
	}

	if idx.auxSize > idx.maxAuxSize {
		return idx.Rebuild()
	}
	return nil
}

// Rebuild merges live main+aux entries into a freshly sorted main area
// with an empty aux area, writing atomically via temp file + rename
// (spec §4.3 "Insert... rebuild").
func (idx *Index) Rebuild() error {
	var live []indexrecord.Record

	for i := int32(0); i < idx.mainSize; i++ {
		rec, err := idx.readAt(idx.mainOffset(i))
		if err != nil {
			return err
		}
		if !idx.isDeleted(rec) {
			live = append(live, rec)
		}
	}
	for i := int32(0); i < idx.auxSize; i++ {
		rec, err := idx.readAt(idx.auxOffset(i))
		if err != nil {
			return err
		}
		if !idx.isDeleted(rec) {
			live = append(live, rec)
		}
	}

	sortRecords(live)

	tmpPath := idx.path + ".tmp"
	if err := Build(tmpPath, idx.format, live); err != nil {
		return err
	}

	if err := idx.file.Close(); err != nil {
		return reldberr.New(reldberr.CorruptFile, "seqindex.Rebuild", "close old index file", err)
	}
	if err := os.Rename(tmpPath, idx.path); err != nil {
		return reldberr.New(reldberr.CorruptFile, "seqindex.Rebuild", "rename rebuilt index file", err)
	}

	f, err := os.OpenFile(idx.path, os.O_RDWR, 0o644)
	if err != nil {
		return reldberr.New(reldberr.CorruptFile, "seqindex.Rebuild", "reopen rebuilt index file", err)
	}
	idx.file = f
	idx.mainSize = int32(len(live))
	idx.auxSize = 0
	idx.maxAuxSize = maxAuxSizeFor(idx.mainSize)

	idx.log.Infow("seqindex rebuilt", "path", idx.path, "main_size", idx.mainSize)
	return nil
}

// Search returns every (key, offset) matching key, across both main
// and aux areas (spec §4.3 "Point lookup").
func (idx *Index) Search(key model.Value) ([]indexrecord.Record, error) {
	var results []indexrecord.Record

	pos, found, err := idx.binarySearchMain(key)
	if err != nil {
		return nil, err
	}
	if found {
		for i := pos; i >= 0; i-- {
			rec, err := idx.readAt(idx.mainOffset(i))
			if err != nil {
				return nil, err
			}
			if model.Compare(rec.Key, key) != 0 {
				break
			}
			if !idx.isDeleted(rec) {
				results = append(results, rec)
			}
		}
		for i := pos + 1; i < idx.mainSize; i++ {
			rec, err := idx.readAt(idx.mainOffset(i))
			if err != nil {
				return nil, err
			}
			if model.Compare(rec.Key, key) != 0 {
				break
			}
			if !idx.isDeleted(rec) {
				results = append(results, rec)
			}
		}
	}

	for i := int32(0); i < idx.auxSize; i++ {
		rec, err := idx.readAt(idx.auxOffset(i))
		if err != nil {
			return nil, err
		}
		if model.Compare(rec.Key, key) == 0 && !idx.isDeleted(rec) {
			results = append(results, rec)
		}
	}
	return results, nil
}

// binarySearchMain returns the position of any one match in the main
// area, or found=false.
func (idx *Index) binarySearchMain(key model.Value) (int32, bool, error) {
	lo, hi := int32(0), idx.mainSize-1
	for lo <= hi {
		mid := (lo + hi) / 2
		rec, err := idx.readAt(idx.mainOffset(mid))
		if err != nil {
			return 0, false, err
		}
		cmp := model.Compare(rec.Key, key)
		switch {
		case cmp == 0:
			return mid, true, nil
		case cmp < 0:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return 0, false, nil
}

// SearchRange returns every live (key, offset) with lo <= key <= hi
// (spec §4.3 "Range lookup").
func (idx *Index) SearchRange(lo, hi model.Value) ([]indexrecord.Record, error) {
	var results []indexrecord.Record

	firstPos, err := idx.firstPositionAtLeast(lo)
	if err != nil {
		return nil, err
	}
	for i := firstPos; i < idx.mainSize; i++ {
		rec, err := idx.readAt(idx.mainOffset(i))
		if err != nil {
			return nil, err
		}
		if model.Compare(rec.Key, hi) > 0 {
			break
		}
		if !idx.isDeleted(rec) {
			results = append(results, rec)
		}
	}

	for i := int32(0); i < idx.auxSize; i++ {
		rec, err := idx.readAt(idx.auxOffset(i))
		if err != nil {
			return nil, err
		}
		if model.Compare(rec.Key, lo) >= 0 && model.Compare(rec.Key, hi) <= 0 && !idx.isDeleted(rec) {
			results = append(results, rec)
		}
	}
	return results, nil
}

func (idx *Index) firstPositionAtLeast(key model.Value) (int32, error) {
	lo, hi := int32(0), idx.mainSize-1
	result := idx.mainSize
	for lo <= hi {
		mid := (lo + hi) / 2
		rec, err := idx.readAt(idx.mainOffset(mid))
		if err != nil {
			return 0, err
		}
		if model.Compare(rec.Key, key) < 0 {
			lo = mid + 1
		} else {
			result = mid
			hi = mid - 1
		}
	}
	return result, nil
}

// Delete marks the exact (key, offset) pair as a tombstone (spec §4.3
// "Delete"), searching main then aux.
func (idx *Index) Delete(key model.Value, offset int32) (bool, error) {
	sentinel, ok := model.Sentinel(idx.format)
	if !ok {
		return false, reldberr.New(reldberr.UnsupportedFormat, "seqindex.Delete", "format has no sentinel", nil)
	}
	tombstone := indexrecord.Record{Format: idx.format, Key: sentinel, Offset: 0}
	tombstoneBuf, err := indexrecord.Pack(tombstone)
	if err != nil {
		return false, err
	}

	for i := int32(0); i < idx.mainSize; i++ {
		off := idx.mainOffset(i)
		rec, err := idx.readAt(off)
		if err != nil {
			return false, err
		}
		if model.Compare(rec.Key, key) == 0 && rec.Offset == offset {
			if _, err := idx.file.WriteAt(tombstoneBuf, off); err != nil {
				return false, reldberr.New(reldberr.CorruptFile, "seqindex.Delete", "write tombstone", err)
			}
			return true, nil
		}
	}
	for i := int32(0); i < idx.auxSize; i++ {
		off := idx.auxOffset(i)
		rec, err := idx.readAt(off)
		if err != nil {
			return false, err
		}
		if model.Compare(rec.Key, key) == 0 && rec.Offset == offset {
			if _, err := idx.file.WriteAt(tombstoneBuf, off); err != nil {
				return false, reldberr.New(reldberr.CorruptFile, "seqindex.Delete", "write tombstone", err)
			}
			return true, nil
		}
	}
	return false, nil
}
