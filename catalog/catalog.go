// Package catalog implements reldb's table catalog and secondary-index
// router (spec §4.7): schema persistence, marker-file index-presence
// detection, and insert/delete fan-out across every index maintained on
// a table.
//
// Grounded on HundDB's lsm/lsm.go, which wraps several owned
// subcomponents (memtables, WAL, cache, SSTables) behind one type and
// routes each Put/Delete call across whichever of them are live —
// reldb's Table plays the same "one call, many owned components"
// role over heap/btreeidx/hashidx/seqindex/rtreeidx, except per spec §5
// every file is opened fresh and closed before the call returns instead
// of being held open across the component's lifetime. Multi-error
// aggregation on DropTable uses go.uber.org/multierr directly (the
// teacher's own app.go has no such Close() to ground on; multierr
// itself, already an indirect HundDB dependency via zap, is the natural
// fit for combining several independent close/remove errors).
package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"reldb/model"
	"reldb/reldberr"
	"reldb/storage/heap"
)

// IndexKind names one of the four secondary-index implementations a
// field can be indexed by.
type IndexKind string

const (
	KindBTree IndexKind = "btree"
	KindHash  IndexKind = "hash"
	KindSeq   IndexKind = "seq"
	KindRTree IndexKind = "rtree"
)

// pkCheckOrder is the order catalog consults an existing PK index in
// for the "PK-variant insert" duplicate check (spec §4.7).
var pkCheckOrder = []IndexKind{KindBTree, KindHash, KindRTree}

// Config configures a Table's dependencies.
type Config struct {
	Logger *zap.SugaredLogger
}

func (c *Config) logger() *zap.SugaredLogger {
	if c == nil || c.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return c.Logger
}

// Table is an open catalog entry: a table's schema plus the directory
// its heap, sidecar, and index files live in. No file handle is held
// across calls (spec §5): every operation opens what it needs and
// closes it before returning.
type Table struct {
	dir    string
	schema *model.Schema
	log    *zap.SugaredLogger
}

func (t *Table) heapPath() string {
	return filepath.Join(t.dir, t.schema.TableName+".heap")
}

func (t *Table) schemaPath() string {
	return schemaPath(t.dir, t.schema.TableName)
}

func schemaPath(dir, table string) string {
	return filepath.Join(dir, table+".schema.json")
}

func (t *Table) sidecarPath(field string) string {
	return filepath.Join(t.dir, fmt.Sprintf("%s.%s.text.sidecar", t.schema.TableName, field))
}

// soundSidecarPath returns the path for one of a SOUND field's two sidecar
// stores, part being "blob" or "hist" (spec §3.1, §4.2).
func (t *Table) soundSidecarPath(field, part string) string {
	return filepath.Join(t.dir, fmt.Sprintf("%s.%s.sound.%s.sidecar", t.schema.TableName, field, part))
}

// sidecarPaths returns the path for every TEXT field's sidecar store, plus
// the blob/histogram pair for every SOUND field, keyed the way heap.File
// expects (heap.BlobSidecarKey/HistSidecarKey).
func (t *Table) sidecarPaths() map[string]string {
	paths := make(map[string]string)
	for _, f := range t.schema.Fields {
		switch f.Format.Kind {
		case model.KindText:
			paths[f.Name] = t.sidecarPath(f.Name)
		case model.KindSound:
			paths[heap.BlobSidecarKey(f.Name)] = t.soundSidecarPath(f.Name, "blob")
			paths[heap.HistSidecarKey(f.Name)] = t.soundSidecarPath(f.Name, "hist")
		}
	}
	return paths
}

// markerPath returns the path of the index file whose presence is the
// (table, field, kind) marker (spec §4.7). For hash indexes this is the
// main bucket-store file; hashTriePath gives its companion.
func (t *Table) markerPath(field string, kind IndexKind) string {
	return filepath.Join(t.dir, fmt.Sprintf("%s.%s.%s.idx", t.schema.TableName, field, kind))
}

func (t *Table) hashTriePath(field string) string {
	return filepath.Join(t.dir, fmt.Sprintf("%s.%s.hash.trie", t.schema.TableName, field))
}

// CreateTable validates schema, persists it as JSON next to the future
// data file, and builds an empty heap file plus a sidecar for every
// TEXT field (spec §6.1, §4.1 "Create").
func CreateTable(dir string, schema *model.Schema, cfg *Config) (*Table, error) {
	if err := schema.Validate(); err != nil {
		return nil, reldberr.New(reldberr.SchemaMismatch, "catalog.CreateTable", "invalid schema", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "catalog.CreateTable", "create table directory", err)
	}

	t := &Table{dir: dir, schema: schema, log: cfg.logger()}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "catalog.CreateTable", "marshal schema", err)
	}
	if err := os.WriteFile(t.schemaPath(), data, 0o644); err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "catalog.CreateTable", "write schema file", err)
	}

	if err := heap.Build(t.heapPath(), schema, t.sidecarPaths()); err != nil {
		return nil, err
	}

	t.log.Infow("table created", "table", schema.TableName, "dir", dir)
	return t, nil
}

// OpenTable loads a table's schema back from dir. It performs no data
// file I/O; every operation opens the heap and index files it needs on
// demand.
func OpenTable(dir, tableName string, cfg *Config) (*Table, error) {
	data, err := os.ReadFile(schemaPath(dir, tableName))
	if err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "catalog.OpenTable", "read schema file", err)
	}
	var schema model.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "catalog.OpenTable", "parse schema file", err)
	}
	return &Table{dir: dir, schema: &schema, log: cfg.logger()}, nil
}

// Schema returns the table's schema.
func (t *Table) Schema() *model.Schema { return t.schema }

// DropTable drops every index on every field, then the data and schema
// files (spec §4.7 "Drop table"). Every independent removal is
// attempted; their errors are combined with multierr instead of
// aborting on the first failure, so a missing/already-gone file never
// masks a real failure elsewhere.
func (t *Table) DropTable() error {
	var errs error
	for _, f := range t.schema.Fields {
		for _, kind := range []IndexKind{KindBTree, KindHash, KindSeq, KindRTree} {
			if _, ok := t.presentIndex(f.Name, kind); ok {
				if err := t.dropIndexFiles(f.Name, kind); err != nil {
					errs = multierr.Append(errs, err)
				}
			}
		}
		switch f.Format.Kind {
		case model.KindText:
			if err := removeIfExists(t.sidecarPath(f.Name)); err != nil {
				errs = multierr.Append(errs, err)
			}
		case model.KindSound:
			if err := removeIfExists(t.soundSidecarPath(f.Name, "blob")); err != nil {
				errs = multierr.Append(errs, err)
			}
			if err := removeIfExists(t.soundSidecarPath(f.Name, "hist")); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	if err := removeIfExists(t.heapPath()); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := removeIfExists(t.schemaPath()); err != nil {
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return reldberr.New(reldberr.CorruptFile, "catalog.DropTable", "one or more files failed to drop", errs)
	}
	t.log.Infow("table dropped", "table", t.schema.TableName)
	return nil
}

func (t *Table) dropIndexFiles(field string, kind IndexKind) error {
	var errs error
	if err := removeIfExists(t.markerPath(field, kind)); err != nil {
		errs = multierr.Append(errs, err)
	}
	if kind == KindHash {
		if err := removeIfExists(t.hashTriePath(field)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return reldberr.New(reldberr.CorruptFile, "catalog.removeIfExists", fmt.Sprintf("remove %s", path), err)
	}
	return nil
}

// presentIndex reports whether a (field, kind) marker file exists.
func (t *Table) presentIndex(field string, kind IndexKind) (string, bool) {
	path := t.markerPath(field, kind)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// OpenHeap opens the table's heap file (and its TEXT sidecars) for
// direct access. Used by callers that found matching offsets through a
// raw index file (spec §6.2's search_<kind>_idx range/radius/knn/bounds
// variants) and need to materialize the records those offsets name.
func (t *Table) OpenHeap() (*heap.File, error) {
	return heap.Open(t.heapPath(), t.schema, t.sidecarPaths(), nil)
}

// HasIndex reports whether field carries a live index of kind (spec
// §6.2 "check_<kind>_idx").
func (t *Table) HasIndex(field string, kind IndexKind) bool {
	_, ok := t.presentIndex(field, kind)
	return ok
}

// IndexPath returns the on-disk path of field's kind index marker, for
// callers that need to open the raw index directly (e.g. a range,
// radius, or k-nearest-neighbor query that catalog itself doesn't
// expose). HashTriePath gives the companion trie file a hash index
// also needs.
func (t *Table) IndexPath(field string, kind IndexKind) string {
	return t.markerPath(field, kind)
}

// HashTriePath returns the companion trie-file path for a hash index
// on field.
func (t *Table) HashTriePath(field string) string {
	return t.hashTriePath(field)
}

// presentIndexes enumerates every (field, kind) marker present for the
// table, in a deterministic field-then-kind order (spec §5: "each index
// in unspecified but deterministic order derived from marker-file
// enumeration").
func (t *Table) presentIndexes() []fieldIndex {
	var out []fieldIndex
	for _, f := range t.schema.Fields {
		for _, kind := range []IndexKind{KindBTree, KindHash, KindSeq, KindRTree} {
			if _, ok := t.presentIndex(f.Name, kind); ok {
				out = append(out, fieldIndex{field: f, kind: kind})
			}
		}
	}
	return out
}

type fieldIndex struct {
	field model.Field
	kind  IndexKind
}
