package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"reldb/config"
	"reldb/model"
	"reldb/reldberr"
	"reldb/storage/btreeidx"
	"reldb/storage/hashidx"
	"reldb/storage/rtreeidx"
)

func widgetSchema() *model.Schema {
	return &model.Schema{
		TableName: "widgets",
		Fields: []model.Field{
			{Name: "id", Format: model.Format{Kind: model.KindInt}, IsPrimaryKey: true},
			{Name: "name", Format: model.Format{Kind: model.KindString, N: 20}},
			{Name: "loc", Format: model.Format{Kind: model.KindFloatTuple, N: 2}},
		},
	}
}

func widgetRecord(schema *model.Schema, id int32, name string, x, y float32) *model.Record {
	return &model.Record{Schema: schema, Values: []model.Value{
		model.IntValue(id),
		model.StringValue(20, name),
		model.FloatTupleValue(x, y),
	}}
}

func newTestTable(t *testing.T) (*Table, string) {
	t.Helper()
	dir := t.TempDir()
	table, err := CreateTable(dir, widgetSchema(), nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return table, dir
}

func TestCreateTableThenOpenTableRoundTrips(t *testing.T) {
	table, dir := newTestTable(t)
	_ = table

	reopened, err := OpenTable(dir, "widgets", nil)
	if err != nil {
		t.Fatalf("OpenTable: %v", err)
	}
	if reopened.Schema().TableName != "widgets" {
		t.Fatalf("unexpected schema: %+v", reopened.Schema())
	}
	pk, ok := reopened.Schema().PrimaryKey()
	if !ok || pk.Name != "id" {
		t.Fatalf("expected primary key id, got %+v ok=%v", pk, ok)
	}
}

func TestCreateIndexRejectsUnknownField(t *testing.T) {
	table, _ := newTestTable(t)
	err := table.CreateIndex("nope", KindBTree)
	if !reldberr.Is(err, reldberr.UnknownField) {
		t.Fatalf("expected UnknownField, got %v", err)
	}
}

func TestCreateIndexRejectsDuplicate(t *testing.T) {
	table, _ := newTestTable(t)
	if err := table.CreateIndex("id", KindBTree); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	err := table.CreateIndex("id", KindBTree)
	if !reldberr.Is(err, reldberr.IndexExists) {
		t.Fatalf("expected IndexExists, got %v", err)
	}
}

func TestCreateIndexRejectsWrongFormat(t *testing.T) {
	table, _ := newTestTable(t)
	if err := table.CreateIndex("loc", KindBTree); err == nil {
		t.Fatal("expected error building a B+ tree over a float-tuple field")
	}
	if err := table.CreateIndex("id", KindRTree); err == nil {
		t.Fatal("expected error building an r-tree over a scalar field")
	}
}

func TestInsertFanoutAcrossAllIndexKinds(t *testing.T) {
	table, dir := newTestTable(t)
	if err := table.CreateIndex("id", KindBTree); err != nil {
		t.Fatalf("CreateIndex id: %v", err)
	}
	if err := table.CreateIndex("name", KindHash); err != nil {
		t.Fatalf("CreateIndex name: %v", err)
	}
	if err := table.CreateIndex("loc", KindRTree); err != nil {
		t.Fatalf("CreateIndex loc: %v", err)
	}

	offset, err := table.Insert(widgetRecord(table.Schema(), 1, "Galletas", 1, 1))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if offset != 0 {
		t.Fatalf("expected offset 0, got %d", offset)
	}

	cfg := config.Get()

	bt, err := btreeidx.Open(filepath.Join(dir, "widgets.id.btree.idx"), model.Format{Kind: model.KindInt}, cfg.BTree.Order, nil)
	if err != nil {
		t.Fatalf("btreeidx.Open: %v", err)
	}
	defer bt.Close()
	recs, err := bt.Search(model.IntValue(1))
	if err != nil || len(recs) != 1 || recs[0].Offset != offset {
		t.Fatalf("btree fanout missing entry: recs=%+v err=%v", recs, err)
	}

	hx, err := hashidx.Open(filepath.Join(dir, "widgets.name.hash.idx"), filepath.Join(dir, "widgets.name.hash.trie"),
		model.Format{Kind: model.KindString, N: 20}, cfg.Hash.BucketCapacity, nil)
	if err != nil {
		t.Fatalf("hashidx.Open: %v", err)
	}
	defer hx.Close()
	hrecs, err := hx.Search(model.StringValue(20, "Galletas"))
	if err != nil || len(hrecs) != 1 || hrecs[0].Offset != offset {
		t.Fatalf("hash fanout missing entry: recs=%+v err=%v", hrecs, err)
	}

	rt, err := rtreeidx.Open(filepath.Join(dir, "widgets.loc.rtree.idx"), model.Format{Kind: model.KindFloatTuple, N: 2}, nil)
	if err != nil {
		t.Fatalf("rtreeidx.Open: %v", err)
	}
	defer rt.Close()
	rres, err := rt.SearchPoint(model.FloatTupleValue(1, 1))
	if err != nil || len(rres) != 1 || rres[0].Offset != offset {
		t.Fatalf("rtree fanout missing entry: recs=%+v err=%v", rres, err)
	}
}

func TestInsertPKVariantUsesIndexForDuplicateCheck(t *testing.T) {
	table, _ := newTestTable(t)
	if err := table.CreateIndex("id", KindBTree); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	if _, err := table.Insert(widgetRecord(table.Schema(), 5, "A", 0, 0)); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	_, err := table.Insert(widgetRecord(table.Schema(), 5, "B", 1, 1))
	if !reldberr.Is(err, reldberr.DuplicateKey) {
		t.Fatalf("expected DuplicateKey, got %v", err)
	}
}

func TestInsertWithoutPKIndexFallsBackToHeapScan(t *testing.T) {
	table, _ := newTestTable(t)
	if _, err := table.Insert(widgetRecord(table.Schema(), 9, "A", 0, 0)); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := table.Insert(widgetRecord(table.Schema(), 9, "B", 1, 1))
	if !reldberr.Is(err, reldberr.DuplicateKey) {
		t.Fatalf("expected DuplicateKey from heap scan, got %v", err)
	}
}

func TestDeleteFansOutAcrossIndexes(t *testing.T) {
	table, dir := newTestTable(t)
	if err := table.CreateIndex("id", KindBTree); err != nil {
		t.Fatalf("CreateIndex id: %v", err)
	}
	if err := table.CreateIndex("name", KindHash); err != nil {
		t.Fatalf("CreateIndex name: %v", err)
	}

	if _, err := table.Insert(widgetRecord(table.Schema(), 7, "Chocolate", 2, 2)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ok, err := table.Delete(model.IntValue(7))
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}

	cfg := config.Get()

	bt, err := btreeidx.Open(filepath.Join(dir, "widgets.id.btree.idx"), model.Format{Kind: model.KindInt}, cfg.BTree.Order, nil)
	if err != nil {
		t.Fatalf("btreeidx.Open: %v", err)
	}
	defer bt.Close()
	recs, err := bt.Search(model.IntValue(7))
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected no btree entry after delete, got %+v err=%v", recs, err)
	}

	hx, err := hashidx.Open(filepath.Join(dir, "widgets.name.hash.idx"), filepath.Join(dir, "widgets.name.hash.trie"),
		model.Format{Kind: model.KindString, N: 20}, cfg.Hash.BucketCapacity, nil)
	if err != nil {
		t.Fatalf("hashidx.Open: %v", err)
	}
	defer hx.Close()
	hrecs, err := hx.Search(model.StringValue(20, "Chocolate"))
	if err != nil || len(hrecs) != 0 {
		t.Fatalf("expected no hash entry after delete, got %+v err=%v", hrecs, err)
	}
}

func TestDeleteNotFoundReportsFalse(t *testing.T) {
	table, _ := newTestTable(t)
	ok, err := table.Delete(model.IntValue(123))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok {
		t.Fatal("expected not-found delete to report false")
	}
}

func TestDropIndexRemovesMarkerFiles(t *testing.T) {
	table, dir := newTestTable(t)
	if err := table.CreateIndex("name", KindHash); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := table.DropIndex("name", KindHash); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if _, ok := table.presentIndex("name", KindHash); ok {
		t.Fatal("expected index marker to be gone after DropIndex")
	}
	if _, err := os.Stat(filepath.Join(dir, "widgets.name.hash.idx")); !os.IsNotExist(err) {
		t.Fatalf("expected hash db file removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "widgets.name.hash.trie")); !os.IsNotExist(err) {
		t.Fatalf("expected hash trie file removed, stat err=%v", err)
	}
}

func TestDropIndexMissingReportsError(t *testing.T) {
	table, _ := newTestTable(t)
	err := table.DropIndex("name", KindHash)
	if !reldberr.Is(err, reldberr.IndexMissing) {
		t.Fatalf("expected IndexMissing, got %v", err)
	}
}

func TestSearchByFieldFallsBackToHeapScanWithoutIndex(t *testing.T) {
	table, _ := newTestTable(t)
	table.Insert(widgetRecord(table.Schema(), 1, "Alpha", 0, 0))
	table.Insert(widgetRecord(table.Schema(), 2, "Beta", 1, 1))

	recs, err := table.SearchByField("name", model.StringValue(20, "Beta"))
	if err != nil {
		t.Fatalf("SearchByField: %v", err)
	}
	if len(recs) != 1 || recs[0].Values[0].Int != 2 {
		t.Fatalf("unexpected results: %+v", recs)
	}
}

func TestSearchByFieldUsesPresentIndex(t *testing.T) {
	table, _ := newTestTable(t)
	if err := table.CreateIndex("name", KindHash); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	table.Insert(widgetRecord(table.Schema(), 1, "Alpha", 0, 0))
	table.Insert(widgetRecord(table.Schema(), 2, "Beta", 1, 1))

	recs, err := table.SearchByField("name", model.StringValue(20, "Alpha"))
	if err != nil {
		t.Fatalf("SearchByField: %v", err)
	}
	if len(recs) != 1 || recs[0].Values[0].Int != 1 {
		t.Fatalf("unexpected results: %+v", recs)
	}
}

func TestDropTableRemovesEverything(t *testing.T) {
	table, dir := newTestTable(t)
	if err := table.CreateIndex("id", KindBTree); err != nil {
		t.Fatalf("CreateIndex id: %v", err)
	}
	if err := table.CreateIndex("name", KindHash); err != nil {
		t.Fatalf("CreateIndex name: %v", err)
	}
	if err := table.CreateIndex("loc", KindRTree); err != nil {
		t.Fatalf("CreateIndex loc: %v", err)
	}
	if _, err := table.Insert(widgetRecord(table.Schema(), 1, "A", 0, 0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := table.DropTable(); err != nil {
		t.Fatalf("DropTable: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty table directory after DropTable, got %+v", entries)
	}
}

func clipSchema() *model.Schema {
	return &model.Schema{
		TableName: "clips",
		Fields: []model.Field{
			{Name: "id", Format: model.Format{Kind: model.KindInt}, IsPrimaryKey: true},
			{Name: "audio", Format: model.Format{Kind: model.KindSound}},
		},
	}
}

func TestSoundFieldInsertSearchDeleteDropRoundTrips(t *testing.T) {
	dir := t.TempDir()
	table, err := CreateTable(dir, clipSchema(), nil)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	blob := []byte{1, 2, 3}
	hist := []byte{9, 9}
	rec := &model.Record{Schema: table.Schema(), Values: []model.Value{
		model.IntValue(1),
		{Format: model.Format{Kind: model.KindSound}, Bytes: blob, Hist: hist},
	}}
	if _, err := table.Insert(rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	found, err := table.SearchByField("id", model.IntValue(1))
	if err != nil || len(found) != 1 {
		t.Fatalf("SearchByField: recs=%+v err=%v", found, err)
	}
	if string(found[0].Values[1].Bytes) != string(blob) || string(found[0].Values[1].Hist) != string(hist) {
		t.Fatalf("expected sound payload to round-trip, got %+v", found[0].Values[1])
	}

	ok, err := table.Delete(model.IntValue(1))
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}

	if err := table.DropTable(); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty table directory after DropTable, got %+v", entries)
	}
}
