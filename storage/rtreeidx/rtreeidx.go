// Package rtreeidx wraps github.com/dhconnelly/rtreego as reldb's
// spatial secondary index (spec §4.6). The core only maps a point or
// box field value into the library's MBR representation and forwards
// insert/delete/query calls; it never reaches into rtreego's internal
// node layout.
//
// Grounded on original_source/backend/database/indexing/RTreeIndex.py
// for the contract shape (to_mbr, search_record/_radius/_bounds/_knn,
// the point-vs-box dims dispatch) adapted to Go's rtreego API. rtreego
// keeps its tree in memory only, so reldb persists (key, offset, or a
// delete tombstone) entries to its own append-only log and replays
// them into a fresh in-memory tree on Open — the same "log + rebuild"
// shape storage/heap and storage/sidecar use for their own files, not
// something rtreego provides.
package rtreeidx

import (
	"encoding/binary"
	"math"
	"os"

	"github.com/dhconnelly/rtreego"
	"go.uber.org/zap"

	"reldb/model"
	"reldb/reldberr"
)

// epsilon is the half-width used to turn a degenerate point into the
// zero-volume-avoiding rectangle rtreego requires.
const epsilon = 1e-6

// Config configures an Index's dependencies and the underlying
// rtreego branching factors.
type Config struct {
	Logger      *zap.SugaredLogger
	MinChildren int
	MaxChildren int
}

func (c *Config) logger() *zap.SugaredLogger {
	if c == nil || c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

func (c *Config) minMax() (int, int) {
	if c == nil || c.MinChildren == 0 || c.MaxChildren == 0 {
		return 25, 50
	}
	return c.MinChildren, c.MaxChildren
}

// Result pairs a spatial key back up with the heap offset it indexes.
type Result struct {
	Key    model.Value
	Offset int32
}

// entry is reldb's rtreego.Spatial implementation: a bounding box plus
// the heap offset it refers to. vals keeps the original flat key
// (point or box-as-mins-then-maxs) so refine/reconstruction never
// needs to pull coordinates back out of rtreego's own Rect type.
type entry struct {
	offset int32
	vals   []float32
	rect   rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// Index is an open R-tree secondary index for one spatial field.
type Index struct {
	logPath  string
	format   model.Format // KindFloatTuple, N in {2, 3, 4, 6}
	dims     int          // 2 or 3
	isBox    bool         // true for 4f/6f
	tree     *rtreego.Rtree
	log      *os.File
	logEntry int
	sugar    *zap.SugaredLogger
}

func dimsFor(n int) (dims int, isBox bool, err error) {
	switch n {
	case 2:
		return 2, false, nil
	case 3:
		return 3, false, nil
	case 4:
		return 2, true, nil
	case 6:
		return 3, true, nil
	default:
		return 0, false, reldberr.New(reldberr.UnsupportedFormat, "rtreeidx", "spatial field must be 2f, 3f, 4f, or 6f", nil)
	}
}

// Build creates a fresh R-tree log and bulk-loads entries.
func Build(logPath string, format model.Format, cfg *Config, entries []Result) error {
	if format.Kind != model.KindFloatTuple {
		return reldberr.New(reldberr.UnsupportedFormat, "rtreeidx.Build", "spatial index key must be a float tuple", nil)
	}
	if _, _, err := dimsFor(format.N); err != nil {
		return err
	}

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return reldberr.New(reldberr.CorruptFile, "rtreeidx.Build", "create rtree log", err)
	}
	f.Close()

	idx, err := Open(logPath, format, cfg)
	if err != nil {
		return err
	}
	defer idx.Close()
	for _, e := range entries {
		if err := idx.Insert(e.Key, e.Offset); err != nil {
			return err
		}
	}
	return nil
}

// Open replays the persisted log into a fresh in-memory rtreego.Rtree.
func Open(logPath string, format model.Format, cfg *Config) (*Index, error) {
	dims, isBox, err := dimsFor(format.N)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(logPath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "rtreeidx.Open", "open rtree log", err)
	}

	min, max := cfg.minMax()
	idx := &Index{
		logPath: logPath, format: format, dims: dims, isBox: isBox,
		tree: rtreego.NewTree(dims, min, max), log: f, sugar: cfg.logger(),
	}
	if err := idx.replay(); err != nil {
		f.Close()
		return nil, err
	}
	idx.sugar.Infow("rtree index opened", "path", logPath, "dims", dims, "is_box", isBox, "entries", idx.logEntry)
	return idx, nil
}

// Close closes the log file.
func (idx *Index) Close() error {
	if err := idx.log.Close(); err != nil {
		return reldberr.New(reldberr.CorruptFile, "rtreeidx.Close", "close rtree log", err)
	}
	return nil
}

func (idx *Index) logRecordSize() int {
	return 1 + idx.format.N*4 + 4 // isDelete:1, N floats, offset:4
}

func (idx *Index) replay() error {
	info, err := idx.log.Stat()
	if err != nil {
		return reldberr.New(reldberr.CorruptFile, "rtreeidx.replay", "stat rtree log", err)
	}
	recSize := idx.logRecordSize()
	count := int(info.Size()) / recSize

	type key struct {
		offset int32
		coords [6]float32
	}
	type liveEntry struct {
		vals []float32
		rect rtreego.Rect
	}
	live := make(map[key]liveEntry)

	buf := make([]byte, recSize)
	for i := 0; i < count; i++ {
		if _, err := idx.log.ReadAt(buf, int64(i*recSize)); err != nil {
			return reldberr.New(reldberr.CorruptFile, "rtreeidx.replay", "read log record", err)
		}
		isDelete := buf[0] == 1
		vals := make([]float32, idx.format.N)
		for j := 0; j < idx.format.N; j++ {
			vals[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[1+j*4:]))
		}
		offset := int32(binary.LittleEndian.Uint32(buf[1+idx.format.N*4:]))

		var k key
		k.offset = offset
		copy(k.coords[:], vals)

		if isDelete {
			delete(live, k)
			continue
		}
		rect, err := idx.toRect(vals)
		if err != nil {
			return err
		}
		live[k] = liveEntry{vals: vals, rect: rect}
	}

	for k, le := range live {
		idx.tree.Insert(&entry{offset: k.offset, vals: le.vals, rect: le.rect})
	}
	idx.logEntry = count
	return nil
}

func (idx *Index) appendLog(isDelete bool, vals []float32, offset int32) error {
	buf := make([]byte, idx.logRecordSize())
	if isDelete {
		buf[0] = 1
	}
	for j, v := range vals {
		binary.LittleEndian.PutUint32(buf[1+j*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[1+idx.format.N*4:], uint32(offset))

	if _, err := idx.log.WriteAt(buf, int64(idx.logEntry*idx.logRecordSize())); err != nil {
		return reldberr.New(reldberr.CorruptFile, "rtreeidx.appendLog", "append rtree log record", err)
	}
	idx.logEntry++
	return nil
}

// toRect converts a flat key value into a bounding rectangle: for
// point-typed fields (2f/3f) it inflates the point by epsilon in
// every dimension; for box-typed fields (4f/6f) vals is already
// mins-then-maxs (spec §4.6).
func (idx *Index) toRect(vals []float32) (rtreego.Rect, error) {
	if !idx.isBox {
		point := make(rtreego.Point, idx.dims)
		lengths := make([]float64, idx.dims)
		for i := 0; i < idx.dims; i++ {
			point[i] = float64(vals[i]) - epsilon
			lengths[i] = 2 * epsilon
		}
		rect, err := rtreego.NewRect(point, lengths)
		if err != nil {
			return rtreego.Rect{}, reldberr.New(reldberr.CorruptFile, "rtreeidx.toRect", "build point rect", err)
		}
		return rect, nil
	}

	mins := make(rtreego.Point, idx.dims)
	lengths := make([]float64, idx.dims)
	for i := 0; i < idx.dims; i++ {
		lo := float64(vals[i])
		hi := float64(vals[idx.dims+i])
		mins[i] = lo
		lengths[i] = hi - lo
		if lengths[i] <= 0 {
			lengths[i] = epsilon
		}
	}
	rect, err := rtreego.NewRect(mins, lengths)
	if err != nil {
		return rtreego.Rect{}, reldberr.New(reldberr.CorruptFile, "rtreeidx.toRect", "build box rect", err)
	}
	return rect, nil
}
