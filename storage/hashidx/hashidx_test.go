package hashidx

import (
	"path/filepath"
	"testing"

	"reldb/indexrecord"
	"reldb/model"
)

func intRec(key, offset int32) indexrecord.Record {
	return indexrecord.Record{Format: model.Format{Kind: model.KindInt}, Key: model.IntValue(key), Offset: offset}
}

func buildTestIndex(t *testing.T, capacity int, entries []indexrecord.Record) *Index {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "widgets.id.hash.db")
	triePath := filepath.Join(dir, "widgets.id.hash.trie")
	format := model.Format{Kind: model.KindInt}

	if err := Build(dbPath, triePath, format, capacity, entries); err != nil {
		t.Fatalf("Build: %v", err)
	}
	idx, err := Open(dbPath, triePath, format, capacity, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestInsertAndSearch(t *testing.T) {
	idx := buildTestIndex(t, 4, []indexrecord.Record{intRec(1, 10), intRec(2, 20), intRec(3, 30)})

	results, err := idx.Search(model.IntValue(2))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Offset != 20 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearchMissReturnsEmpty(t *testing.T) {
	idx := buildTestIndex(t, 4, []indexrecord.Record{intRec(1, 10)})

	results, err := idx.Search(model.IntValue(99))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestManyInsertsTriggerSplitsAndStayFindable(t *testing.T) {
	idx := buildTestIndex(t, 2, nil)
	const n = 200
	for i := int32(0); i < n; i++ {
		if err := idx.Insert(intRec(i, i*7)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int32(0); i < n; i++ {
		results, err := idx.Search(model.IntValue(i))
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if len(results) != 1 || results[0].Offset != i*7 {
			t.Fatalf("Search(%d) = %+v, want one match with offset %d", i, results, i*7)
		}
	}

	all, err := idx.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != n {
		t.Fatalf("expected %d entries from Scan, got %d", n, len(all))
	}
}

func TestDuplicateKeysBothSearchable(t *testing.T) {
	idx := buildTestIndex(t, 4, nil)
	if err := idx.Insert(intRec(5, 1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := idx.Insert(intRec(5, 2)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := idx.Search(model.IntValue(5))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(results), results)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	idx := buildTestIndex(t, 4, []indexrecord.Record{intRec(1, 10), intRec(2, 20)})

	ok, err := idx.Delete(model.IntValue(1), 10)
	if err != nil || !ok {
		t.Fatalf("Delete = ok=%v err=%v", ok, err)
	}

	results, err := idx.Search(model.IntValue(1))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after delete, got %+v", results)
	}

	results, err = idx.Search(model.IntValue(2))
	if err != nil || len(results) != 1 {
		t.Fatalf("expected surviving entry for key 2, got %+v err=%v", results, err)
	}
}

func TestDeleteNotFoundReportsFalse(t *testing.T) {
	idx := buildTestIndex(t, 4, []indexrecord.Record{intRec(1, 10)})

	ok, err := idx.Delete(model.IntValue(99), 0)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok {
		t.Fatal("expected not-found delete to report false")
	}
}

func TestOverflowChainAcrossManyDuplicateKeys(t *testing.T) {
	idx := buildTestIndex(t, 2, nil)
	const n = 50
	for i := int32(0); i < n; i++ {
		if err := idx.Insert(intRec(42, i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	results, err := idx.Search(model.IntValue(42))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != n {
		t.Fatalf("expected %d duplicates, got %d", n, len(results))
	}
}

func TestRejectsNonScalarKeyFormat(t *testing.T) {
	dir := t.TempDir()
	err := Build(filepath.Join(dir, "bad.hash.db"), filepath.Join(dir, "bad.hash.trie"),
		model.Format{Kind: model.KindBool}, 4, nil)
	if err == nil {
		t.Fatal("expected error building a hash index over a non-scalar key format")
	}
}
