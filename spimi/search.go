package spimi

import (
	"math"
	"sort"

	json "github.com/goccy/go-json"

	"reldb/catalog"
	"reldb/model"
	"reldb/reldberr"
	stheap "reldb/storage/heap"
)

// SearchResult is one ranked hit from Search: the matched doc id, its
// cosine similarity to the query, and the original record it names
// (nil if the source record has since been deleted).
type SearchResult struct {
	DocID  int32
	Score  float64
	Record *model.Record
}

// Search runs spec §4.8's cosine search: preprocess query, accumulate a
// score per candidate doc from the term postings, normalize, and
// return the top k by descending similarity (ties broken by ascending
// doc id for determinism, per spec §4.8's invariant that results are
// deterministic for a fixed corpus). source is the indexed table's
// heap, used both to recompute N (total live docs, matching the N used
// at build time) and to fetch each hit's original record by primary key.
func Search(dir string, source *stheap.File, indexTableName, query string, k int, cfg *Config) ([]SearchResult, error) {
	rc := resolveConfig(cfg)
	catCfg := &catalog.Config{Logger: rc.logger()}
	pipeline, err := rc.textPipeline()
	if err != nil {
		return nil, err
	}

	docs, err := source.IterateTextDocuments()
	if err != nil {
		return nil, err
	}
	N := len(docs)
	if N == 0 || k <= 0 {
		return nil, nil
	}

	terms := pipeline.preprocess(query)
	if len(terms) == 0 {
		return nil, nil
	}

	indexTable, err := catalog.OpenTable(dir, indexTableName, catCfg)
	if err != nil {
		return nil, err
	}
	normsTable, err := catalog.OpenTable(dir, indexTableName+"_norms", catCfg)
	if err != nil {
		return nil, err
	}

	qtf := make(map[string]int, len(terms))
	for _, t := range terms {
		qtf[t]++
	}
	qlen := len(terms)

	score := make(map[int32]float64)
	var qNormSq float64

	for term, tf := range qtf {
		key := term
		if len(key) > indexTermFieldLen {
			key = key[:indexTermFieldLen]
		}
		recs, err := indexTable.SearchByField("term", model.StringValue(indexTermFieldLen, key))
		if err != nil {
			return nil, err
		}
		if len(recs) == 0 {
			continue
		}
		postings, err := decodePostings(recs[0])
		if err != nil {
			return nil, err
		}
		df := len(postings)
		if df == 0 {
			continue
		}
		idf := math.Log(float64(N) / float64(df)) // spec §4.8 step 1: "fresh idf from the merged index"
		qt := (float64(tf) / float64(qlen)) * idf
		qNormSq += qt * qt
		for _, p := range postings {
			score[p.DocID] += qt * p.TFIDF
		}
	}

	qNorm := math.Sqrt(qNormSq)

	type scored struct {
		docID int32
		sim   float64
	}
	const epsilon = 1e-9
	var ranked []scored
	for docID, raw := range score {
		norm, err := docNorm(normsTable, docID)
		if err != nil {
			return nil, err
		}
		denom := qNorm * norm
		if denom < epsilon {
			denom = epsilon
		}
		ranked = append(ranked, scored{docID: docID, sim: raw / denom})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].sim != ranked[j].sim {
			return ranked[i].sim > ranked[j].sim
		}
		return ranked[i].docID < ranked[j].docID
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	pk, hasPK := source.Schema().PrimaryKey()
	if !hasPK {
		return nil, reldberr.New(reldberr.NoPrimaryKey, "spimi.Search", "source table has no primary key", nil)
	}

	results := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		var rec *model.Record
		if srcRecs, err := source.SearchByField(pk.Name, model.IntValue(r.docID)); err == nil && len(srcRecs) > 0 {
			rec = srcRecs[0]
		}
		results = append(results, SearchResult{DocID: r.docID, Score: r.sim, Record: rec})
	}
	return results, nil
}

func decodePostings(rec *model.Record) ([]postingEntry, error) {
	var postings []postingEntry
	if err := json.Unmarshal([]byte(rec.Values[1].Str), &postings); err != nil {
		return nil, reldberr.New(reldberr.CorruptFile, "spimi.decodePostings", "unmarshal postings", err)
	}
	return postings, nil
}

func docNorm(t *catalog.Table, docID int32) (float64, error) {
	recs, err := t.SearchByField("doc_id", model.IntValue(docID))
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return float64(recs[0].Values[1].Float), nil
}
