package catalog

import (
	"reldb/model"
	"reldb/reldberr"
	"reldb/storage/heap"
)

// findPKIndex returns the first present index on the primary-key field,
// checked in the order spec §4.7 names for the PK-variant duplicate
// check: B+ tree, hash, r-tree.
func (t *Table) findPKIndex(pk model.Field) (fieldIndex, bool) {
	for _, kind := range pkCheckOrder {
		if _, ok := t.presentIndex(pk.Name, kind); ok {
			return fieldIndex{field: pk, kind: kind}, true
		}
	}
	return fieldIndex{}, false
}

// Insert writes rec to the heap and fans it out to every present index
// (spec §4.7 "Insert fanout"). When a PK index is present, the
// duplicate check is delegated to it instead of the heap's own scan
// (spec §4.7 "PK-variant inserts", spec §4.1 "free insert ... used when
// a secondary index has already proven uniqueness").
func (t *Table) Insert(rec *model.Record) (int32, error) {
	hf, err := heap.Open(t.heapPath(), t.schema, t.sidecarPaths(), nil)
	if err != nil {
		return 0, err
	}
	defer hf.Close()

	pk, hasPK := t.schema.PrimaryKey()
	var offset int32

	if hasPK {
		if pkFI, ok := t.findPKIndex(pk); ok {
			pkVal, _ := rec.ValueByName(pk.Name)
			if model.IsSentinel(pkVal) {
				return 0, reldberr.New(reldberr.SentinelNotAllowed, "catalog.Insert", "sentinel value not allowed in primary key", nil)
			}
			offs, err := t.indexSearch(pkFI, pkVal)
			if err != nil {
				return 0, err
			}
			if len(offs) > 0 {
				return 0, reldberr.New(reldberr.DuplicateKey, "catalog.Insert", "duplicate primary key", nil)
			}
			offset, err = hf.InsertFree(rec)
			if err != nil {
				return 0, err
			}
		} else {
			offset, err = hf.Insert(rec)
			if err != nil {
				return 0, err
			}
		}
	} else {
		offset, err = hf.Insert(rec)
		if err != nil {
			return 0, err
		}
	}

	for _, fi := range t.presentIndexes() {
		value, ok := rec.ValueByName(fi.field.Name)
		if !ok {
			continue
		}
		if err := t.indexInsert(fi, value, offset); err != nil {
			return offset, err
		}
	}

	t.log.Infow("catalog insert", "table", t.schema.TableName, "offset", offset)
	return offset, nil
}

// Delete removes the record with the given primary-key value from the
// heap and fans the delete out to every present index using the old
// record's field values (spec §4.7 "Delete fanout").
func (t *Table) Delete(key model.Value) (bool, error) {
	hf, err := heap.Open(t.heapPath(), t.schema, t.sidecarPaths(), nil)
	if err != nil {
		return false, err
	}
	defer hf.Close()

	ok, offset, old, err := hf.DeleteByPK(key)
	if err != nil || !ok {
		return ok, err
	}

	for _, fi := range t.presentIndexes() {
		value, found := old.ValueByName(fi.field.Name)
		if !found {
			continue
		}
		if err := t.indexDelete(fi, value, offset); err != nil {
			return true, err
		}
	}

	t.log.Infow("catalog delete", "table", t.schema.TableName, "offset", offset)
	return true, nil
}
