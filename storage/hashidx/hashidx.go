// Package hashidx implements the on-disk extendible hash secondary
// index of spec §3.7 and §4.5: a fixed-capacity bucket-page heap with
// overflow chaining, addressed through a persisted binary trie keyed
// on successive bits of a SHA-256-derived hash.
//
// Grounded on original_source/backend/database/indexing/ExtendibleHashIndex.py
// for the page-heap header shape ("!ii8s": num_records, next, padding)
// and the page-heap/bucket-chain split, and on
// other_examples/06a0e439_abhinav-upadhyay-brickdb's HashIndex for the
// general on-disk hash-chain-with-overflow idiom (the chain-follow
// insert/search/delete shape), adapted here from brickdb's static
// single hash table to a trie that grows by splitting.
package hashidx

import (
	"encoding/binary"
	"crypto/sha256"
	"math"
	"os"

	"go.uber.org/zap"

	"reldb/indexrecord"
	"reldb/model"
	"reldb/reldberr"
)

const (
	// GlobalDepth caps the trie's depth (spec §4.5).
	GlobalDepth = 16

	storeHeaderSize = 16 // next_pid:i32, capacity:i32, pad:8
	pageHeaderSize  = 16 // num_records:i32, next:i32, pad:8
	noNext          = -1
)

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

// Index is an open extendible hash index for one (table, field) pair.
type Index struct {
	dbPath, triePath string
	format           model.Format
	capacity         int
	recSize          int
	pageSize         int64
	nextPid          int32
	dbFile           *os.File
	root             *trieNode
	log              *zap.SugaredLogger
}

// Build creates a new bucket store and trie, then inserts entries.
func Build(dbPath, triePath string, format model.Format, capacity int, entries []indexrecord.Record) error {
	if !format.IsScalarKey() {
		return reldberr.New(reldberr.UnsupportedFormat, "hashidx.Build", "key format must be scalar", nil)
	}
	recSize, err := indexrecord.Size(format)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return reldberr.New(reldberr.CorruptFile, "hashidx.Build", "create bucket store", err)
	}
	defer f.Close()

	idx := &Index{
		dbPath: dbPath, triePath: triePath, format: format, capacity: capacity,
		recSize: recSize, pageSize: int64(pageHeaderSize + capacity*recSize),
		nextPid: 0, dbFile: f, log: zap.NewNop().Sugar(),
	}

	rootPid, err := idx.allocatePage()
	if err != nil {
		return err
	}
	idx.root = &trieNode{isLeaf: true, pageID: rootPid}
	if err := idx.writeStoreHeader(); err != nil {
		return err
	}
	if err := idx.saveTrie(); err != nil {
		return err
	}

	for _, e := range entries {
		if err := idx.Insert(e); err != nil {
			return err
		}
	}
	return nil
}

// Open opens an existing hash index.
func Open(dbPath, triePath string, format model.Format, capacity int, cfg *Config) (*Index, error) {
	if !format.IsScalarKey() {
		return nil, reldberr.New(reldberr.UnsupportedFormat, "hashidx.Open", "key format must be scalar", nil)
	}
	recSize, err := indexrecord.Size(format)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(dbPath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "hashidx.Open", "open bucket store", err)
	}

	header := make([]byte, storeHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, reldberr.New(reldberr.CorruptFile, "hashidx.Open", "read store header", err)
	}
	nextPid := int32(binary.LittleEndian.Uint32(header[0:4]))

	idx := &Index{
		dbPath: dbPath, triePath: triePath, format: format, capacity: capacity,
		recSize: recSize, pageSize: int64(pageHeaderSize + capacity*recSize),
		nextPid: nextPid, dbFile: f, log: cfg.logger(),
	}
	if err := idx.loadTrie(); err != nil {
		f.Close()
		return nil, err
	}
	return idx, nil
}

// Close closes the bucket store.
func (idx *Index) Close() error {
	if err := idx.dbFile.Close(); err != nil {
		return reldberr.New(reldberr.CorruptFile, "hashidx.Close", "close bucket store", err)
	}
	return nil
}

func (idx *Index) writeStoreHeader() error {
	buf := make([]byte, storeHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(idx.nextPid))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(idx.capacity))
	if _, err := idx.dbFile.WriteAt(buf, 0); err != nil {
		return reldberr.New(reldberr.CorruptFile, "hashidx.writeStoreHeader", "write store header", err)
	}
	return nil
}

type bucketPage struct {
	pid     int32
	next    int32
	records []indexrecord.Record
}

func (idx *Index) pageOffset(pid int32) int64 {
	return storeHeaderSize + int64(pid)*idx.pageSize
}

func (idx *Index) allocatePage() (int32, error) {
	pid := idx.nextPid
	idx.nextPid++
	page := &bucketPage{pid: pid, next: noNext}
	if err := idx.writePage(page); err != nil {
		return 0, err
	}
	if err := idx.writeStoreHeader(); err != nil {
		return 0, err
	}
	return pid, nil
}

func (idx *Index) readPage(pid int32) (*bucketPage, error) {
	header := make([]byte, pageHeaderSize)
	if _, err := idx.dbFile.ReadAt(header, idx.pageOffset(pid)); err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "hashidx.readPage", "read page header", err)
	}
	count := int(binary.LittleEndian.Uint32(header[0:4]))
	next := int32(binary.LittleEndian.Uint32(header[4:8]))

	body := make([]byte, idx.capacity*idx.recSize)
	if count > 0 {
		if _, err := idx.dbFile.ReadAt(body, idx.pageOffset(pid)+pageHeaderSize); err != nil {
			return nil, reldberr.New(reldberr.CorruptFile, "hashidx.readPage", "read page body", err)
		}
	}
	page := &bucketPage{pid: pid, next: next}
	for i := 0; i < count; i++ {
		rec, err := indexrecord.Unpack(body[i*idx.recSize:], idx.format)
		if err != nil {
			return nil, err
		}
		page.records = append(page.records, rec)
	}
	return page, nil
}

func (idx *Index) writePage(page *bucketPage) error {
	buf := make([]byte, idx.pageSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(page.records)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(page.next))
	for i, rec := range page.records {
		packed, err := indexrecord.Pack(rec)
		if err != nil {
			return err
		}
		copy(buf[pageHeaderSize+i*idx.recSize:], packed)
	}
	if _, err := idx.dbFile.WriteAt(buf, idx.pageOffset(page.pid)); err != nil {
		return reldberr.New(reldberr.CorruptFile, "hashidx.writePage", "write page", err)
	}
	return nil
}

func (page *bucketPage) isFull(capacity int) bool {
	return len(page.records) >= capacity
}

// hashBits computes the GlobalDepth-bit trie path for key (spec §4.5):
// for strings, SHA-256 then the lowest 32 bits of the digest; for
// integers, the value itself masked to 32 bits; both cases then
// contribute their top 16 bits, most-significant first.
func hashBits(format model.Format, key model.Value) [GlobalDepth]bool {
	var v uint32
	switch format.Kind {
	case model.KindString:
		sum := sha256.Sum256([]byte(key.Str))
		v = binary.BigEndian.Uint32(sum[28:32])
	case model.KindInt:
		v = uint32(key.Int)
	case model.KindFloat:
		v = math.Float32bits(key.Float)
	}

	var bits [GlobalDepth]bool
	for i := 0; i < GlobalDepth; i++ {
		shift := uint(31 - i)
		bits[i] = (v>>shift)&1 == 1
	}
	return bits
}
