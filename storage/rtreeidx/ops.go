package rtreeidx

import (
	"math"

	"github.com/dhconnelly/rtreego"

	"reldb/model"
)

// Insert adds (key, offset) to the index (spec §4.6: "forwarding
// insert/delete").
func (idx *Index) Insert(key model.Value, offset int32) error {
	vals := toFloats(key)
	if err := idx.appendLog(false, vals, offset); err != nil {
		return err
	}
	rect, err := idx.toRect(vals)
	if err != nil {
		return err
	}
	idx.tree.Insert(&entry{offset: offset, vals: vals, rect: rect})
	return nil
}

// Delete removes (key, offset) from the index.
func (idx *Index) Delete(key model.Value, offset int32) error {
	vals := toFloats(key)
	if err := idx.appendLog(true, vals, offset); err != nil {
		return err
	}
	rect, err := idx.toRect(vals)
	if err != nil {
		return err
	}
	idx.tree.DeleteWithComparator(&entry{offset: offset, vals: vals, rect: rect}, func(a, b rtreego.Spatial) bool {
		ea, eb := a.(*entry), b.(*entry)
		if ea.offset != eb.offset || len(ea.vals) != len(eb.vals) {
			return false
		}
		for i := range ea.vals {
			if ea.vals[i] != eb.vals[i] {
				return false
			}
		}
		return true
	})
	return nil
}

func toFloats(key model.Value) []float32 {
	return key.Floats
}

func (idx *Index) fromRect(e *entry) model.Value {
	return model.FloatTupleValue(e.vals...)
}

func toEntries(spatials []rtreego.Spatial) []*entry {
	out := make([]*entry, 0, len(spatials))
	for _, s := range spatials {
		out = append(out, s.(*entry))
	}
	return out
}

// SearchPoint returns entries whose bounds intersect the exact point
// or box given by key (spec §4.6 "point intersection" / "bounding-box
// intersection").
func (idx *Index) SearchPoint(key model.Value) ([]Result, error) {
	rect, err := idx.toRect(toFloats(key))
	if err != nil {
		return nil, err
	}
	hits := toEntries(idx.tree.SearchIntersect(rect))
	results := make([]Result, len(hits))
	for i, e := range hits {
		results[i] = Result{Key: idx.fromRect(e), Offset: e.offset}
	}
	return results, nil
}

// SearchBounds returns entries intersecting the axis-aligned box
// [lower, upper] (spec §4.6 bounding-box intersection).
func (idx *Index) SearchBounds(lower, upper []float32) ([]Result, error) {
	point := make(rtreego.Point, idx.dims)
	lengths := make([]float64, idx.dims)
	for i := 0; i < idx.dims; i++ {
		point[i] = float64(lower[i])
		lengths[i] = float64(upper[i] - lower[i])
		if lengths[i] <= 0 {
			lengths[i] = epsilon
		}
	}
	rect, err := rtreego.NewRect(point, lengths)
	if err != nil {
		return nil, err
	}
	hits := toEntries(idx.tree.SearchIntersect(rect))
	results := make([]Result, len(hits))
	for i, e := range hits {
		results[i] = Result{Key: idx.fromRect(e), Offset: e.offset}
	}
	return results, nil
}

// SearchRadius performs a bounding-box filter (point +/- radius in
// every dimension) then an exact refine (spec §4.6): for box-typed
// fields the refine distance is point-to-MBR minimum distance; for
// point-typed fields it is plain Euclidean distance.
func (idx *Index) SearchRadius(point []float32, radius float64) ([]Result, error) {
	filterPoint := make(rtreego.Point, idx.dims)
	lengths := make([]float64, idx.dims)
	for i := 0; i < idx.dims; i++ {
		filterPoint[i] = float64(point[i]) - radius
		lengths[i] = 2 * radius
	}
	filterRect, err := rtreego.NewRect(filterPoint, lengths)
	if err != nil {
		return nil, err
	}

	hits := toEntries(idx.tree.SearchIntersect(filterRect))
	var results []Result
	for _, e := range hits {
		var dist float64
		if idx.isBox {
			dist = pointToMBRMinDist(point, e.vals, idx.dims)
		} else {
			dist = euclidean(point, e.vals, idx.dims)
		}
		if dist <= radius {
			results = append(results, Result{Key: idx.fromRect(e), Offset: e.offset})
		}
	}
	return results, nil
}

// pointToMBRMinDist is the point-to-MBR minimum distance used to
// refine box-typed (4f/6f) candidates (spec §4.6); vals is mins then
// maxs, matching original_source's RTreeIndex.point_mbr_mindist.
func pointToMBRMinDist(point []float32, vals []float32, dims int) float64 {
	var sumSq float64
	for i := 0; i < dims; i++ {
		q := float64(point[i])
		lo := float64(vals[i])
		hi := float64(vals[dims+i])
		switch {
		case q < lo:
			sumSq += (q - lo) * (q - lo)
		case q > hi:
			sumSq += (q - hi) * (q - hi)
		}
	}
	return math.Sqrt(sumSq)
}

func euclidean(point []float32, vals []float32, dims int) float64 {
	var sumSq float64
	for i := 0; i < dims; i++ {
		d := float64(point[i]) - float64(vals[i])
		sumSq += d * d
	}
	return math.Sqrt(sumSq)
}

// SearchKNN returns the k nearest entries to point by number of
// results (spec §4.6 "kNN by number of results").
func (idx *Index) SearchKNN(point []float32, k int) ([]Result, error) {
	p := make(rtreego.Point, idx.dims)
	for i := 0; i < idx.dims; i++ {
		p[i] = float64(point[i])
	}
	hits := toEntries(idx.tree.NearestNeighbors(k, p))
	results := make([]Result, len(hits))
	for i, e := range hits {
		results[i] = Result{Key: idx.fromRect(e), Offset: e.offset}
	}
	return results, nil
}
