package catalog

import (
	"fmt"

	"reldb/model"
	"reldb/reldberr"
	"reldb/storage/heap"
)

// indexedLookupOrder is the order SearchByField prefers a scalar index
// on the queried field, fastest/most-specific first.
var indexedLookupOrder = []IndexKind{KindBTree, KindHash, KindSeq}

// SearchByField returns every live record whose named field equals
// value (spec §6.2 "search_by_field"). It uses a present B+ tree, hash,
// or sequential index on that field for a direct lookup when one
// exists; otherwise it falls back to the heap's own linear scan.
func (t *Table) SearchByField(field string, value model.Value) ([]*model.Record, error) {
	f, ok := t.schema.FieldByName(field)
	if !ok {
		return nil, reldberr.New(reldberr.UnknownField, "catalog.SearchByField", fmt.Sprintf("field %q not in schema", field), nil)
	}

	hf, err := heap.Open(t.heapPath(), t.schema, t.sidecarPaths(), nil)
	if err != nil {
		return nil, err
	}
	defer hf.Close()

	for _, kind := range indexedLookupOrder {
		if _, present := t.presentIndex(field, kind); !present {
			continue
		}
		offsets, err := t.indexSearch(fieldIndex{field: f, kind: kind}, value)
		if err != nil {
			return nil, err
		}
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

	return hf.SearchByField(field, value)
}
