package rtreeidx

import (
	"path/filepath"
	"testing"

	"reldb/model"
)

func buildTestIndex(t *testing.T, format model.Format, entries []Result) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "places.loc.rtree.log")
	if err := Build(path, format, nil, entries); err != nil {
		t.Fatalf("Build: %v", err)
	}
	idx, err := Open(path, format, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestSearchPointFindsExactMatch(t *testing.T) {
	format := model.Format{Kind: model.KindFloatTuple, N: 2}
	idx := buildTestIndex(t, format, []Result{
		{Key: model.FloatTupleValue(1, 1), Offset: 0},
		{Key: model.FloatTupleValue(5, 5), Offset: 1},
	})

	results, err := idx.SearchPoint(model.FloatTupleValue(5, 5))
	if err != nil {
		t.Fatalf("SearchPoint: %v", err)
	}
	if len(results) != 1 || results[0].Offset != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearchRadiusPointType(t *testing.T) {
	format := model.Format{Kind: model.KindFloatTuple, N: 2}
	idx := buildTestIndex(t, format, []Result{
		{Key: model.FloatTupleValue(0, 0), Offset: 0},
		{Key: model.FloatTupleValue(3, 4), Offset: 1}, // distance 5 from origin
		{Key: model.FloatTupleValue(100, 100), Offset: 2},
	})

	results, err := idx.SearchRadius([]float32{0, 0}, 5.0)
	if err != nil {
		t.Fatalf("SearchRadius: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results within radius 5, got %d: %+v", len(results), results)
	}
}

func TestSearchRadiusBoxType(t *testing.T) {
	format := model.Format{Kind: model.KindFloatTuple, N: 4}
	idx := buildTestIndex(t, format, []Result{
		{Key: model.FloatTupleValue(0, 0, 2, 2), Offset: 0},   // box around origin
		{Key: model.FloatTupleValue(50, 50, 52, 52), Offset: 1},
	})

	results, err := idx.SearchRadius([]float32{0, 0}, 3.0)
	if err != nil {
		t.Fatalf("SearchRadius: %v", err)
	}
	if len(results) != 1 || results[0].Offset != 0 {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestSearchKNNReturnsClosestFirst(t *testing.T) {
	format := model.Format{Kind: model.KindFloatTuple, N: 2}
	idx := buildTestIndex(t, format, []Result{
		{Key: model.FloatTupleValue(10, 10), Offset: 0},
		{Key: model.FloatTupleValue(1, 1), Offset: 1},
		{Key: model.FloatTupleValue(2, 2), Offset: 2},
	})

	results, err := idx.SearchKNN([]float32{0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchKNN: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Offset != 1 || results[1].Offset != 2 {
		t.Fatalf("expected offsets [1 2] closest first, got %+v", results)
	}
}

func TestDeleteThenSearchMisses(t *testing.T) {
	format := model.Format{Kind: model.KindFloatTuple, N: 2}
	idx := buildTestIndex(t, format, []Result{{Key: model.FloatTupleValue(1, 1), Offset: 0}})

	if err := idx.Delete(model.FloatTupleValue(1, 1), 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	results, err := idx.SearchPoint(model.FloatTupleValue(1, 1))
	if err != nil {
		t.Fatalf("SearchPoint: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results after delete, got %+v", results)
	}
}

func TestReopenReplaysLogMinusDeletes(t *testing.T) {
	format := model.Format{Kind: model.KindFloatTuple, N: 2}
	path := filepath.Join(t.TempDir(), "places.loc.rtree.log")

	if err := Build(path, format, nil, []Result{
		{Key: model.FloatTupleValue(1, 1), Offset: 0},
		{Key: model.FloatTupleValue(2, 2), Offset: 1},
	}); err != nil {
		t.Fatalf("Build: %v", err)
	}

	idx, err := Open(path, format, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := idx.Delete(model.FloatTupleValue(1, 1), 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	idx.Close()

	reopened, err := Open(path, format, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	results, err := reopened.SearchPoint(model.FloatTupleValue(1, 1))
	if err != nil {
		t.Fatalf("SearchPoint: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected deleted entry to stay deleted after reopen, got %+v", results)
	}

	results, err = reopened.SearchPoint(model.FloatTupleValue(2, 2))
	if err != nil || len(results) != 1 {
		t.Fatalf("expected surviving entry, got %+v err=%v", results, err)
	}
}

func TestRejectsNonFloatTupleFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rtree.log")
	err := Build(path, model.Format{Kind: model.KindInt}, nil, nil)
	if err == nil {
		t.Fatal("expected error building an rtree index over a non-tuple format")
	}
}

func TestRejectsUnsupportedDims(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rtree.log")
	err := Build(path, model.Format{Kind: model.KindFloatTuple, N: 5}, nil, nil)
	if err == nil {
		t.Fatal("expected error building an rtree index with N=5")
	}
}
