package search

import (
	"testing"

	"reldb/catalog"
	"reldb/model"
	"reldb/reldberr"
)

func placeSchema() *model.Schema {
	return &model.Schema{
		TableName: "places",
		Fields: []model.Field{
			{Name: "id", Format: model.Format{Kind: model.KindInt}, IsPrimaryKey: true},
			{Name: "name", Format: model.Format{Kind: model.KindString, N: 20}},
			{Name: "rating", Format: model.Format{Kind: model.KindFloat}},
			{Name: "loc", Format: model.Format{Kind: model.KindFloatTuple, N: 2}},
			{Name: "description", Format: model.Format{Kind: model.KindText}},
		},
	}
}

func placeRecord(id int32, name string, rating float32, x, y float32, description string) *model.Record {
	s := placeSchema()
	return &model.Record{Schema: s, Values: []model.Value{
		model.IntValue(id),
		model.StringValue(20, name),
		model.FloatValue(rating),
		model.FloatTupleValue(x, y),
		{Format: model.Format{Kind: model.KindText}, Str: description},
	}}
}

func TestCreateTableThenCheckAndSchemaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := Open(dir, nil)

	if e.CheckTableExists("places") {
		t.Fatal("expected places not to exist yet")
	}
	if err := e.CreateTable(placeSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if !e.CheckTableExists("places") {
		t.Fatal("expected places to exist after CreateTable")
	}

	err := e.CreateTable(placeSchema())
	if !reldberr.Is(err, reldberr.TableExists) {
		t.Fatalf("expected TableExists on duplicate create, got %v", err)
	}

	schema, err := e.GetTableSchema("places")
	if err != nil {
		t.Fatalf("GetTableSchema: %v", err)
	}
	if schema.TableName != "places" {
		t.Fatalf("unexpected schema: %+v", schema)
	}
}

func TestIndexLifecycleAndSearchVariants(t *testing.T) {
	dir := t.TempDir()
	e := Open(dir, nil)
	if err := e.CreateTable(placeSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	if ok, _ := e.CheckIndex("places", "id", catalog.KindBTree); ok {
		t.Fatal("expected no btree index before creation")
	}
	if err := e.CreateIndex("places", "id", catalog.KindBTree); err != nil {
		t.Fatalf("CreateIndex id btree: %v", err)
	}
	if err := e.CreateIndex("places", "name", catalog.KindHash); err != nil {
		t.Fatalf("CreateIndex name hash: %v", err)
	}
	if err := e.CreateIndex("places", "loc", catalog.KindRTree); err != nil {
		t.Fatalf("CreateIndex loc rtree: %v", err)
	}
	if ok, err := e.CheckIndex("places", "id", catalog.KindBTree); err != nil || !ok {
		t.Fatalf("expected btree index present, ok=%v err=%v", ok, err)
	}

	if _, err := e.InsertRecord("places", placeRecord(1, "Alpha", 4.5, 1, 1, "a quiet cafe")); err != nil {
		t.Fatalf("InsertRecord 1: %v", err)
	}
	if _, err := e.InsertRecord("places", placeRecord(2, "Beta", 3.0, 5, 5, "a loud bar")); err != nil {
		t.Fatalf("InsertRecord 2: %v", err)
	}
	if _, err := e.InsertRecord("places", placeRecord(3, "Gamma", 4.0, 2, 2, "a cozy cafe")); err != nil {
		t.Fatalf("InsertRecord 3: %v", err)
	}

	byField, err := e.SearchByField("places", "name", model.StringValue(20, "Beta"))
	if err != nil || len(byField) != 1 || byField[0].Values[0].Int != 2 {
		t.Fatalf("SearchByField: recs=%+v err=%v", byField, err)
	}

	byIdx, err := e.SearchIndex("places", "id", catalog.KindBTree, model.IntValue(1))
	if err != nil || len(byIdx) != 1 || byIdx[0].Values[0].Int != 1 {
		t.Fatalf("SearchIndex btree: recs=%+v err=%v", byIdx, err)
	}

	byPoint, err := e.SearchIndex("places", "loc", catalog.KindRTree, model.FloatTupleValue(1, 1))
	if err != nil || len(byPoint) != 1 || byPoint[0].Values[0].Int != 1 {
		t.Fatalf("SearchIndex rtree point: recs=%+v err=%v", byPoint, err)
	}

	ranged, err := e.SearchIndexRange("places", "id", catalog.KindBTree, model.IntValue(1), model.IntValue(2))
	if err != nil || len(ranged) != 2 {
		t.Fatalf("SearchIndexRange: recs=%+v err=%v", ranged, err)
	}

	bounds, err := e.SearchIndexBounds("places", "loc", []float32{0, 0}, []float32{3, 3})
	if err != nil {
		t.Fatalf("SearchIndexBounds: %v", err)
	}
	if len(bounds) != 2 {
		t.Fatalf("expected 2 places within bounds, got %+v", bounds)
	}

	radius, err := e.SearchIndexRadius("places", "loc", []float32{1, 1}, 2.0)
	if err != nil {
		t.Fatalf("SearchIndexRadius: %v", err)
	}
	if len(radius) == 0 {
		t.Fatal("expected at least one place within radius")
	}

	knn, err := e.SearchIndexKNN("places", "loc", []float32{1, 1}, 1)
	if err != nil {
		t.Fatalf("SearchIndexKNN: %v", err)
	}
	if len(knn) != 1 || knn[0].Values[0].Int != 1 {
		t.Fatalf("expected nearest neighbor to be place 1, got %+v", knn)
	}

	deleted, err := e.DeleteRecord("places", model.IntValue(2))
	if err != nil || !deleted {
		t.Fatalf("DeleteRecord: ok=%v err=%v", deleted, err)
	}
	if _, err := e.SearchIndex("places", "name", catalog.KindHash, model.StringValue(20, "Beta")); err != nil {
		t.Fatalf("SearchIndex hash after delete: %v", err)
	}

	if err := e.DropIndex("places", "loc", catalog.KindRTree); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if _, err := e.SearchIndexBounds("places", "loc", []float32{0, 0}, []float32{1, 1}); !reldberr.Is(err, reldberr.IndexMissing) {
		t.Fatalf("expected IndexMissing after drop, got %v", err)
	}
}

func TestSpimiBuildAndSearchTextThroughFacade(t *testing.T) {
	dir := t.TempDir()
	e := Open(dir, nil)
	if err := e.CreateTable(placeSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := e.InsertRecord("places", placeRecord(1, "Alpha", 4.5, 1, 1, "a quiet cafe with good coffee")); err != nil {
		t.Fatalf("InsertRecord 1: %v", err)
	}
	if _, err := e.InsertRecord("places", placeRecord(2, "Beta", 3.0, 5, 5, "a loud bar with live music")); err != nil {
		t.Fatalf("InsertRecord 2: %v", err)
	}

	stats, err := e.BuildSpimiIndex("places", "places_text_idx")
	if err != nil {
		t.Fatalf("BuildSpimiIndex: %v", err)
	}
	if stats.DocCount != 2 {
		t.Fatalf("expected 2 docs indexed, got %d", stats.DocCount)
	}

	results, err := e.SearchText("places", "places_text_idx", "coffee cafe", 5)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(results) == 0 || results[0].DocID != 1 {
		t.Fatalf("expected place 1 to rank first for 'coffee cafe', got %+v", results)
	}
}

func TestDropTableRemovesEverythingThroughFacade(t *testing.T) {
	dir := t.TempDir()
	e := Open(dir, nil)
	if err := e.CreateTable(placeSchema()); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := e.InsertRecord("places", placeRecord(1, "Alpha", 4.5, 1, 1, "text")); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if err := e.DropTable("places"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	if e.CheckTableExists("places") {
		t.Fatal("expected places to be gone after DropTable")
	}
}
