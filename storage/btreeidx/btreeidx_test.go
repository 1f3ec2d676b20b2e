package btreeidx

import (
	"path/filepath"
	"testing"

	"reldb/indexrecord"
	"reldb/model"
)

func intRec(key, offset int32) indexrecord.Record {
	return indexrecord.Record{Format: model.Format{Kind: model.KindInt}, Key: model.IntValue(key), Offset: offset}
}

func buildTestTree(t *testing.T, order int, entries []indexrecord.Record) *Tree {
	t.Helper()
	path := filepath.Join(t.TempDir(), "widgets.id.btree.idx")
	format := model.Format{Kind: model.KindInt}
	if err := Build(path, format, order, entries); err != nil {
		t.Fatalf("Build: %v", err)
	}
	tr, err := Open(path, format, order, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestInsertAndSearchWithinSingleLeaf(t *testing.T) {
	tr := buildTestTree(t, 4, []indexrecord.Record{intRec(10, 0), intRec(5, 1), intRec(20, 2)})

	results, err := tr.Search(model.IntValue(5))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Offset != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestInsertTriggersLeafSplitAndRootGrowth(t *testing.T) {
	tr := buildTestTree(t, 2, nil)
	for i := int32(1); i <= 7; i++ {
		if err := tr.Insert(intRec(i, i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}

	for i := int32(1); i <= 7; i++ {
		results, err := tr.Search(model.IntValue(i))
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if len(results) != 1 || results[0].Offset != i {
			t.Fatalf("Search(%d) = %+v, want one match with offset %d", i, results, i)
		}
	}
}

func TestSearchRangeSpansMultipleLeaves(t *testing.T) {
	tr := buildTestTree(t, 2, nil)
	for i := int32(1); i <= 10; i++ {
		if err := tr.Insert(intRec(i*10, i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	results, err := tr.SearchRange(model.IntValue(25), model.IntValue(65))
	if err != nil {
		t.Fatalf("SearchRange: %v", err)
	}
	if len(results) != 4 { // 30,40,50,60
		t.Fatalf("expected 4 results, got %d: %+v", len(results), results)
	}
}

func TestDuplicateKeysAllSearchable(t *testing.T) {
	tr := buildTestTree(t, 3, nil)
	for i := int32(0); i < 5; i++ {
		if err := tr.Insert(intRec(42, i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	results, err := tr.Search(model.IntValue(42))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 duplicates, got %d: %+v", len(results), results)
	}
}

func TestDeleteThenSearchMisses(t *testing.T) {
	tr := buildTestTree(t, 2, nil)
	for i := int32(1); i <= 6; i++ {
		if err := tr.Insert(intRec(i, i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	ok, err := tr.Delete(model.IntValue(3), 3)
	if err != nil || !ok {
		t.Fatalf("Delete = ok=%v err=%v", ok, err)
	}

	results, err := tr.Search(model.IntValue(3))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after delete, got %+v", results)
	}

	for _, want := range []int32{1, 2, 4, 5, 6} {
		results, err := tr.Search(model.IntValue(want))
		if err != nil || len(results) != 1 {
			t.Fatalf("Search(%d) = %+v, err=%v, want one surviving match", want, results, err)
		}
	}
}

func TestDeleteAllCollapsesRootToLeaf(t *testing.T) {
	tr := buildTestTree(t, 2, nil)
	keys := []int32{1, 2, 3, 4, 5, 6, 7}
	for _, k := range keys {
		if err := tr.Insert(intRec(k, k)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	for _, k := range keys {
		if _, err := tr.Delete(model.IntValue(k), k); err != nil {
			t.Fatalf("Delete(%d): %v", k, err)
		}
	}

	all, err := tr.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty tree, got %+v", all)
	}
}

func TestScanReturnsSortedOrder(t *testing.T) {
	tr := buildTestTree(t, 3, nil)
	for _, k := range []int32{50, 10, 40, 20, 30} {
		if err := tr.Insert(intRec(k, k)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	all, err := tr.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if model.Compare(all[i-1].Key, all[i].Key) > 0 {
			t.Fatalf("scan not sorted: %+v", all)
		}
	}
}

func TestRejectsNonScalarKeyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.btree.idx")
	err := Build(path, model.Format{Kind: model.KindBool}, 4, nil)
	if err == nil {
		t.Fatal("expected error building a tree over a non-scalar key format")
	}
}
