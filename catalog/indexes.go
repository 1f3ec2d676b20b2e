package catalog

import (
	"fmt"

	"reldb/config"
	"reldb/indexrecord"
	"reldb/model"
	"reldb/reldberr"
	"reldb/storage/btreeidx"
	"reldb/storage/hashidx"
	"reldb/storage/heap"
	"reldb/storage/rtreeidx"
	"reldb/storage/seqindex"
)

// CreateIndex builds a fresh index of kind on field from the table's
// current heap contents and leaves its marker file(s) in place (spec
// §4.7: index presence is the existence of the marker file).
func (t *Table) CreateIndex(field string, kind IndexKind) error {
	f, ok := t.schema.FieldByName(field)
	if !ok {
		return reldberr.New(reldberr.UnknownField, "catalog.CreateIndex", fmt.Sprintf("field %q not in schema", field), nil)
	}
	if _, exists := t.presentIndex(field, kind); exists {
		return reldberr.New(reldberr.IndexExists, "catalog.CreateIndex", fmt.Sprintf("index %s.%s.%s already exists", t.schema.TableName, field, kind), nil)
	}

	hf, err := heap.Open(t.heapPath(), t.schema, t.sidecarPaths(), nil)
	if err != nil {
		return err
	}
	defer hf.Close()

	entries, err := hf.ExtractIndex(field)
	if err != nil {
		return err
	}

	cfg := config.Get()
	switch kind {
	case KindBTree:
		if !f.Format.IsScalarKey() {
			return reldberr.New(reldberr.UnsupportedFormat, "catalog.CreateIndex", "B+ tree index requires a scalar key format", nil)
		}
		recs := toIndexRecords(f.Format, entries)
		if err := btreeidx.Build(t.markerPath(field, kind), f.Format, cfg.BTree.Order, recs); err != nil {
			return err
		}
	case KindHash:
		if !f.Format.IsScalarKey() {
			return reldberr.New(reldberr.UnsupportedFormat, "catalog.CreateIndex", "hash index requires a scalar key format", nil)
		}
		recs := toIndexRecords(f.Format, entries)
		if err := hashidx.Build(t.markerPath(field, kind), t.hashTriePath(field), f.Format, cfg.Hash.BucketCapacity, recs); err != nil {
			return err
		}
	case KindSeq:
		if !f.Format.IsScalarKey() {
			return reldberr.New(reldberr.UnsupportedFormat, "catalog.CreateIndex", "sequential index requires a scalar key format", nil)
		}
		recs := toIndexRecords(f.Format, entries)
		if err := seqindex.Build(t.markerPath(field, kind), f.Format, recs); err != nil {
			return err
		}
	case KindRTree:
		if f.Format.Kind != model.KindFloatTuple {
			return reldberr.New(reldberr.UnsupportedFormat, "catalog.CreateIndex", "r-tree index requires a float-tuple field", nil)
		}
		results := make([]rtreeidx.Result, len(entries))
		for i, e := range entries {
			results[i] = rtreeidx.Result{Key: e.Value, Offset: e.Offset}
		}
		rcfg := &rtreeidx.Config{MinChildren: cfg.RTree.MinChildren, MaxChildren: cfg.RTree.MaxChildren}
		if err := rtreeidx.Build(t.markerPath(field, kind), f.Format, rcfg, results); err != nil {
			return err
		}
	default:
		return reldberr.New(reldberr.UnsupportedFormat, "catalog.CreateIndex", fmt.Sprintf("unknown index kind %q", kind), nil)
	}

	t.log.Infow("index created", "table", t.schema.TableName, "field", field, "kind", kind, "entries", len(entries))
	return nil
}

// DropIndex removes an index's marker file(s) (spec §4.7).
func (t *Table) DropIndex(field string, kind IndexKind) error {
	if _, ok := t.presentIndex(field, kind); !ok {
		return reldberr.New(reldberr.IndexMissing, "catalog.DropIndex", fmt.Sprintf("index %s.%s.%s does not exist", t.schema.TableName, field, kind), nil)
	}
	if err := t.dropIndexFiles(field, kind); err != nil {
		return reldberr.New(reldberr.CorruptFile, "catalog.DropIndex", "remove index files", err)
	}
	t.log.Infow("index dropped", "table", t.schema.TableName, "field", field, "kind", kind)
	return nil
}

func toIndexRecords(format model.Format, entries []heap.IndexEntry) []indexrecord.Record {
	recs := make([]indexrecord.Record, len(entries))
	for i, e := range entries {
		recs[i] = indexrecord.Record{Format: format, Key: e.Value, Offset: e.Offset}
	}
	return recs
}

// indexInsert opens fi's index file(s), inserts (value, offset), and
// closes them again before returning (spec §5: no long-lived handles).
func (t *Table) indexInsert(fi fieldIndex, value model.Value, offset int32) error {
	cfg := config.Get()
	switch fi.kind {
	case KindBTree:
		idx, err := btreeidx.Open(t.markerPath(fi.field.Name, fi.kind), fi.field.Format, cfg.BTree.Order, nil)
		if err != nil {
			return err
		}
		defer idx.Close()
		return idx.Insert(indexrecord.Record{Format: fi.field.Format, Key: value, Offset: offset})
	case KindHash:
		idx, err := hashidx.Open(t.markerPath(fi.field.Name, fi.kind), t.hashTriePath(fi.field.Name), fi.field.Format, cfg.Hash.BucketCapacity, nil)
		if err != nil {
			return err
		}
		defer idx.Close()
		return idx.Insert(indexrecord.Record{Format: fi.field.Format, Key: value, Offset: offset})
	case KindSeq:
		idx, err := seqindex.Open(t.markerPath(fi.field.Name, fi.kind), fi.field.Format, nil)
		if err != nil {
			return err
		}
		defer idx.Close()
		return idx.Insert(indexrecord.Record{Format: fi.field.Format, Key: value, Offset: offset})
	case KindRTree:
		rcfg := &rtreeidx.Config{MinChildren: cfg.RTree.MinChildren, MaxChildren: cfg.RTree.MaxChildren}
		idx, err := rtreeidx.Open(t.markerPath(fi.field.Name, fi.kind), fi.field.Format, rcfg)
		if err != nil {
			return err
		}
		defer idx.Close()
		return idx.Insert(value, offset)
	default:
		return reldberr.New(reldberr.UnsupportedFormat, "catalog.indexInsert", fmt.Sprintf("unknown index kind %q", fi.kind), nil)
	}
}

// indexDelete mirrors indexInsert for the delete fan-out.
func (t *Table) indexDelete(fi fieldIndex, value model.Value, offset int32) error {
	cfg := config.Get()
	switch fi.kind {
	case KindBTree:
		idx, err := btreeidx.Open(t.markerPath(fi.field.Name, fi.kind), fi.field.Format, cfg.BTree.Order, nil)
		if err != nil {
			return err
		}
		defer idx.Close()
		_, err = idx.Delete(value, offset)
		return err
	case KindHash:
		idx, err := hashidx.Open(t.markerPath(fi.field.Name, fi.kind), t.hashTriePath(fi.field.Name), fi.field.Format, cfg.Hash.BucketCapacity, nil)
		if err != nil {
			return err
		}
		defer idx.Close()
		_, err = idx.Delete(value, offset)
		return err
	case KindSeq:
		idx, err := seqindex.Open(t.markerPath(fi.field.Name, fi.kind), fi.field.Format, nil)
		if err != nil {
			return err
		}
		defer idx.Close()
		_, err = idx.Delete(value, offset)
		return err
	case KindRTree:
		rcfg := &rtreeidx.Config{MinChildren: cfg.RTree.MinChildren, MaxChildren: cfg.RTree.MaxChildren}
		idx, err := rtreeidx.Open(t.markerPath(fi.field.Name, fi.kind), fi.field.Format, rcfg)
		if err != nil {
			return err
		}
		defer idx.Close()
		return idx.Delete(value, offset)
	default:
		return reldberr.New(reldberr.UnsupportedFormat, "catalog.indexDelete", fmt.Sprintf("unknown index kind %q", fi.kind), nil)
	}
}

// indexSearch looks a value up in fi's index and returns the matching
// heap offsets. Used by the PK-variant duplicate check (spec §4.7, via
// len(offsets) > 0) and by SearchByField's indexed lookup path.
func (t *Table) indexSearch(fi fieldIndex, value model.Value) ([]int32, error) {
	cfg := config.Get()
	switch fi.kind {
	case KindBTree:
		idx, err := btreeidx.Open(t.markerPath(fi.field.Name, fi.kind), fi.field.Format, cfg.BTree.Order, nil)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		recs, err := idx.Search(value)
		if err != nil {
			return nil, err
		}
		return recordOffsets(recs), nil
	case KindHash:
		idx, err := hashidx.Open(t.markerPath(fi.field.Name, fi.kind), t.hashTriePath(fi.field.Name), fi.field.Format, cfg.Hash.BucketCapacity, nil)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		recs, err := idx.Search(value)
		if err != nil {
			return nil, err
		}
		return recordOffsets(recs), nil
	case KindSeq:
		idx, err := seqindex.Open(t.markerPath(fi.field.Name, fi.kind), fi.field.Format, nil)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		recs, err := idx.Search(value)
		if err != nil {
			return nil, err
		}
		return recordOffsets(recs), nil
	case KindRTree:
		rcfg := &rtreeidx.Config{MinChildren: cfg.RTree.MinChildren, MaxChildren: cfg.RTree.MaxChildren}
		idx, err := rtreeidx.Open(t.markerPath(fi.field.Name, fi.kind), fi.field.Format, rcfg)
		if err != nil {
			return nil, err
		}
		defer idx.Close()
		results, err := idx.SearchPoint(value)
		if err != nil {
			return nil, err
		}
		offsets := make([]int32, len(results))
		for i, r := range results {
			offsets[i] = r.Offset
		}
		return offsets, nil
	default:
		return nil, reldberr.New(reldberr.UnsupportedFormat, "catalog.indexSearch", fmt.Sprintf("unknown index kind %q", fi.kind), nil)
	}
}

func recordOffsets(recs []indexrecord.Record) []int32 {
	offsets := make([]int32, len(recs))
	for i, r := range recs {
		offsets[i] = r.Offset
	}
	return offsets
}
