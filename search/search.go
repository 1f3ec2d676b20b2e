// Package search is reldb's external interface (spec §6.2): the set of
// operations the (out-of-scope) parser/executor is expected to call.
// Engine is a thin facade over catalog and spimi, one exported method
// per documented verb, grounded on HundDB's App: a struct wrapping the
// storage engine that exposes one method per frontend-callable action,
// each returning (value, error). Like catalog.Table, Engine holds no
// open file handles between calls (spec §5) — it only remembers the
// data directory and the tuning knobs to hand each call.
package search

import (
	"fmt"

	"go.uber.org/zap"

	"reldb/catalog"
	"reldb/config"
	"reldb/indexrecord"
	"reldb/model"
	"reldb/reldberr"
	"reldb/spimi"
	"reldb/storage/btreeidx"
	"reldb/storage/hashidx"
	"reldb/storage/rtreeidx"
	"reldb/storage/seqindex"
)

// Config configures an Engine's dependencies and the knobs handed
// through to catalog and spimi on every call.
type Config struct {
	Logger   *zap.SugaredLogger
	SpimiCfg *spimi.Config
}

func (c *Config) logger() *zap.SugaredLogger {
	if c == nil || c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

func (c *Config) catalogConfig() *catalog.Config {
	return &catalog.Config{Logger: c.logger()}
}

func (c *Config) spimiConfig() *spimi.Config {
	if c == nil {
		return nil
	}
	return c.SpimiCfg
}

// Engine is the facade a caller opens once per data directory and
// reuses across every verb below.
type Engine struct {
	dir string
	cfg *Config
}

// Open returns an Engine rooted at dir. cfg may be nil for defaults.
func Open(dir string, cfg *Config) *Engine {
	return &Engine{dir: dir, cfg: cfg}
}

// CreateTable implements "create_table": schema.TableName must not
// already exist in the engine's directory.
func (e *Engine) CreateTable(schema *model.Schema) error {
	if e.CheckTableExists(schema.TableName) {
		return reldberr.New(reldberr.TableExists, "search.CreateTable", fmt.Sprintf("table %q already exists", schema.TableName), nil)
	}
	_, err := catalog.CreateTable(e.dir, schema, e.cfg.catalogConfig())
	return err
}

// DropTable implements "drop_table".
func (e *Engine) DropTable(table string) error {
	t, err := e.open(table)
	if err != nil {
		return err
	}
	return t.DropTable()
}

// CheckTableExists implements "check_table_exists".
func (e *Engine) CheckTableExists(table string) bool {
	_, err := catalog.OpenTable(e.dir, table, e.cfg.catalogConfig())
	return err == nil
}

// GetTableSchema implements "get_table_schema".
func (e *Engine) GetTableSchema(table string) (*model.Schema, error) {
	t, err := e.open(table)
	if err != nil {
		return nil, err
	}
	return t.Schema(), nil
}

// CreateIndex implements "create_<kind>_idx".
func (e *Engine) CreateIndex(table, field string, kind catalog.IndexKind) error {
	t, err := e.open(table)
	if err != nil {
		return err
	}
	return t.CreateIndex(field, kind)
}

// DropIndex implements "drop_<kind>_idx".
func (e *Engine) DropIndex(table, field string, kind catalog.IndexKind) error {
	t, err := e.open(table)
	if err != nil {
		return err
	}
	return t.DropIndex(field, kind)
}

// CheckIndex implements "check_<kind>_idx".
func (e *Engine) CheckIndex(table, field string, kind catalog.IndexKind) (bool, error) {
	t, err := e.open(table)
	if err != nil {
		return false, err
	}
	return t.HasIndex(field, kind), nil
}

// InsertRecord implements both "insert_record" and the PK-variant
// "insert_record_<pkkind>_pk": catalog.Table.Insert already prefers a
// present PK index for the duplicate check and falls back to a heap
// scan otherwise (spec §4.7), so one method here covers both verbs.
func (e *Engine) InsertRecord(table string, rec *model.Record) (int32, error) {
	t, err := e.open(table)
	if err != nil {
		return 0, err
	}
	return t.Insert(rec)
}

// DeleteRecord implements "delete_record".
func (e *Engine) DeleteRecord(table string, key model.Value) (bool, error) {
	t, err := e.open(table)
	if err != nil {
		return false, err
	}
	return t.Delete(key)
}

// SearchByField implements "search_by_field".
func (e *Engine) SearchByField(table, field string, value model.Value) ([]*model.Record, error) {
	t, err := e.open(table)
	if err != nil {
		return nil, err
	}
	return t.SearchByField(field, value)
}

// SearchIndex implements the base form of "search_<kind>_idx": an
// equality lookup through a present btree/hash/seq index on field, or a
// point lookup through an rtree index on it.
func (e *Engine) SearchIndex(table, field string, kind catalog.IndexKind, value model.Value) ([]*model.Record, error) {
	t, err := e.open(table)
	if err != nil {
		return nil, err
	}
	if !t.HasIndex(field, kind) {
		return nil, reldberr.New(reldberr.IndexMissing, "search.SearchIndex", fmt.Sprintf("no %s index on %s.%s", kind, table, field), nil)
	}

	f, _ := t.Schema().FieldByName(field)
	cfg := config.Get()
	var offsets []int32

	switch kind {
	case catalog.KindBTree:
		idx, err := btreeidx.Open(t.IndexPath(field, kind), f.Format, cfg.BTree.Order, nil)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		recs, err := idx.Search(value)
		if err != nil {
			return nil, err
		}
		offsets = offsetsOf(recs)
	case catalog.KindHash:
		idx, err := hashidx.Open(t.IndexPath(field, kind), t.HashTriePath(field), f.Format, cfg.Hash.BucketCapacity, nil)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		recs, err := idx.Search(value)
		if err != nil {
			return nil, err
		}
		offsets = offsetsOf(recs)
	case catalog.KindSeq:
		idx, err := seqindex.Open(t.IndexPath(field, kind), f.Format, nil)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		recs, err := idx.Search(value)
		if err != nil {
			return nil, err
		}
		offsets = offsetsOf(recs)
	case catalog.KindRTree:
		rcfg := &rtreeidx.Config{MinChildren: cfg.RTree.MinChildren, MaxChildren: cfg.RTree.MaxChildren}
		idx, err := rtreeidx.Open(t.IndexPath(field, kind), f.Format, rcfg)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		results, err := idx.SearchPoint(value)
		if err != nil {
			return nil, err
		}
		offsets = offsetsOfResults(results)
	default:
		return nil, reldberr.New(reldberr.UnsupportedFormat, "search.SearchIndex", fmt.Sprintf("%s has no equality form", kind), nil)
	}

	return e.materialize(t, offsets)
}

// SearchIndexRange implements "search_<kind>_idx_range" for a btree or
// sequential index on field.
func (e *Engine) SearchIndexRange(table, field string, kind catalog.IndexKind, lo, hi model.Value) ([]*model.Record, error) {
	t, err := e.open(table)
	if err != nil {
		return nil, err
	}
	if !t.HasIndex(field, kind) {
		return nil, reldberr.New(reldberr.IndexMissing, "search.SearchIndexRange", fmt.Sprintf("no %s index on %s.%s", kind, table, field), nil)
	}
	f, _ := t.Schema().FieldByName(field)
	cfg := config.Get()

	var offsets []int32
	switch kind {
	case catalog.KindBTree:
		idx, err := btreeidx.Open(t.IndexPath(field, kind), f.Format, cfg.BTree.Order, nil)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		recs, err := idx.SearchRange(lo, hi)
		if err != nil {
			return nil, err
		}
		offsets = offsetsOf(recs)
	case catalog.KindSeq:
		idx, err := seqindex.Open(t.IndexPath(field, kind), f.Format, nil)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		recs, err := idx.SearchRange(lo, hi)
		if err != nil {
			return nil, err
		}
		offsets = offsetsOf(recs)
	default:
		return nil, reldberr.New(reldberr.UnsupportedFormat, "search.SearchIndexRange", fmt.Sprintf("%s has no range form", kind), nil)
	}

	return e.materialize(t, offsets)
}

// SearchIndexBounds implements "search_rtree_idx_bounds": every record
// whose point/box lies within [lower, upper].
func (e *Engine) SearchIndexBounds(table, field string, lower, upper []float32) ([]*model.Record, error) {
	idx, err := e.openRTree(table, field)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	results, err := idx.SearchBounds(lower, upper)
	if err != nil {
		return nil, err
	}
	t, _ := e.open(table)
	return e.materialize(t, offsetsOfResults(results))
}

// SearchIndexRadius implements "search_rtree_idx_radius": every record
// within radius of point.
func (e *Engine) SearchIndexRadius(table, field string, point []float32, radius float64) ([]*model.Record, error) {
	idx, err := e.openRTree(table, field)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	results, err := idx.SearchRadius(point, radius)
	if err != nil {
		return nil, err
	}
	t, _ := e.open(table)
	return e.materialize(t, offsetsOfResults(results))
}

// SearchIndexKNN implements "search_rtree_idx_knn": the k nearest
// records to point.
func (e *Engine) SearchIndexKNN(table, field string, point []float32, k int) ([]*model.Record, error) {
	idx, err := e.openRTree(table, field)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	results, err := idx.SearchKNN(point, k)
	if err != nil {
		return nil, err
	}
	t, _ := e.open(table)
	return e.materialize(t, offsetsOfResults(results))
}

// BuildSpimiIndex implements "build_spimi_index": indexes every TEXT
// field of table into indexTableName (plus its companion norms table).
func (e *Engine) BuildSpimiIndex(table, indexTableName string) (*spimi.Stats, error) {
	t, err := e.open(table)
	if err != nil {
		return nil, err
	}
	hf, err := t.OpenHeap()
	if err != nil {
		return nil, err
	}
	defer hf.Close()
	return spimi.BuildIndex(e.dir, hf, indexTableName, e.cfg.spimiConfig())
}

// SearchText implements "search_text": a cosine-similarity ranked
// search of indexTableName's built inverted index for query, returning
// up to k hits.
func (e *Engine) SearchText(table, indexTableName, query string, k int) ([]spimi.SearchResult, error) {
	t, err := e.open(table)
	if err != nil {
		return nil, err
	}
	hf, err := t.OpenHeap()
	if err != nil {
		return nil, err
	}
	defer hf.Close()
	return spimi.Search(e.dir, hf, indexTableName, query, k, e.cfg.spimiConfig())
}

func (e *Engine) open(table string) (*catalog.Table, error) {
	return catalog.OpenTable(e.dir, table, e.cfg.catalogConfig())
}

func (e *Engine) openRTree(table, field string) (*rtreeidx.Index, error) {
	t, err := e.open(table)
	if err != nil {
		return nil, err
	}
	if !t.HasIndex(field, catalog.KindRTree) {
		return nil, reldberr.New(reldberr.IndexMissing, "search.openRTree", fmt.Sprintf("no rtree index on %s.%s", table, field), nil)
	}
	f, _ := t.Schema().FieldByName(field)
	cfg := config.Get()
	rcfg := &rtreeidx.Config{MinChildren: cfg.RTree.MinChildren, MaxChildren: cfg.RTree.MaxChildren}
	return rtreeidx.Open(t.IndexPath(field, catalog.KindRTree), f.Format, rcfg)
}

func (e *Engine) materialize(t *catalog.Table, offsets []int32) ([]*model.Record, error) {
	hf, err := t.OpenHeap()
	if err != nil {
		return nil, err
	}
	defer hf.Close()
	recs := make([]*model.Record, 0, len(offsets))
	for _, off := range offsets {
		rec, err := hf.FetchByOffset(off)
		if err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func offsetsOf(recs []indexrecord.Record) []int32 {
	offsets := make([]int32, len(recs))
	for i, r := range recs {
		offsets[i] = r.Offset
	}
	return offsets
}

func offsetsOfResults(results []rtreeidx.Result) []int32 {
	offsets := make([]int32, len(results))
	for i, r := range results {
		offsets[i] = r.Offset
	}
	return offsets
}
