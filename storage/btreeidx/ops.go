package btreeidx

import (
	"reldb/indexrecord"
	"reldb/model"
	"reldb/reldberr"
)

// pathEntry records one step of a root-to-leaf descent: the offset of
// the internal node visited and which child index was followed.
type pathEntry struct {
	offset     int64
	childIndex int
}

// descend walks from the root to the leaf an insert of key belongs in,
// recording the internal-node path taken (spec §4.4: "choose child i
// such that key <= keys[i]; equivalently key > keys[j] for all j<i").
// Equal keys land to the left here so repeated inserts of the same key
// accumulate in ascending child order.
func (t *Tree) descend(key model.Value) ([]pathEntry, *pageNode, error) {
	return t.descendBy(key, func(a, b model.Value) bool { return model.Compare(a, b) <= 0 })
}

// descendSearch walks from the root to the leaf that actually holds
// key. A separator is the minimum key of its right child (splitLeaf:
// separator = rightRecords[0].Key), so a key equal to a separator
// lives in the right subtree, not the left one descend() would choose
// -- advance past it instead of stopping. Mirrors BPlusTreeIndex.py's
// search_aux (key >= keys[idx]) vs insert_aux (key > keys[idx])
// asymmetry. Used by Delete; Search and SearchRange descend as Insert
// does and walk forward along next_leaf instead.
func (t *Tree) descendSearch(key model.Value) ([]pathEntry, *pageNode, error) {
	return t.descendBy(key, func(a, b model.Value) bool { return model.Compare(a, b) < 0 })
}

func (t *Tree) descendBy(key model.Value, stop func(key, k model.Value) bool) ([]pathEntry, *pageNode, error) {
	var path []pathEntry
	offset := t.rootOffset
	for {
		n, err := t.readPage(offset)
		if err != nil {
			return nil, nil, err
		}
		if n.isLeaf {
			return path, n, nil
		}
		idx := len(n.keys)
		for i, k := range n.keys {
			if stop(key, k) {
				idx = i
				break
			}
		}
		path = append(path, pathEntry{offset: offset, childIndex: idx})
		offset = n.children[idx]
	}
}

// Insert adds rec to the tree, splitting nodes along the way as
// needed. The descent takes the left child on a key equal to a
// separator (see descend); within the chosen leaf, rec is placed after
// any existing duplicates (spec §4.4).
func (t *Tree) Insert(rec indexrecord.Record) error {
	path, leaf, err := t.descend(rec.Key)
	if err != nil {
		return err
	}

	pos := len(leaf.records)
	for i, r := range leaf.records {
		if model.Compare(r.Key, rec.Key) > 0 {
			pos = i
			break
		}
	}
	leaf.records = append(leaf.records, indexrecord.Record{})
	copy(leaf.records[pos+1:], leaf.records[pos:])
	leaf.records[pos] = rec

	if len(leaf.records) <= t.order {
		return t.writePage(leaf)
	}
	return t.splitLeaf(path, leaf)
}

func (t *Tree) splitLeaf(path []pathEntry, leaf *pageNode) error {
	mid := len(leaf.records) / 2
	rightRecords := append([]indexrecord.Record(nil), leaf.records[mid:]...)
	leftRecords := leaf.records[:mid]

	rightOffset, err := t.allocate(t.leafPageSize)
	if err != nil {
		return err
	}
	right := &pageNode{offset: rightOffset, isLeaf: true, records: rightRecords, nextLeaf: leaf.nextLeaf}
	left := &pageNode{offset: leaf.offset, isLeaf: true, records: leftRecords, nextLeaf: rightOffset}

	if err := t.writePage(left); err != nil {
		return err
	}
	if err := t.writePage(right); err != nil {
		return err
	}

	separator := rightRecords[0].Key
	return t.propagateSplit(path, separator, leaf.offset, rightOffset)
}

// propagateSplit inserts (separator, rightOffset) into the parent
// named by the last entry of path (leftOffset is that parent's
// existing child at childIndex), recursing upward through further
// splits, or creating a new root if path is empty.
func (t *Tree) propagateSplit(path []pathEntry, separator model.Value, leftOffset, rightOffset int64) error {
	if len(path) == 0 {
		return t.newRoot(separator, leftOffset, rightOffset)
	}

	top := path[len(path)-1]
	parent, err := t.readPage(top.offset)
	if err != nil {
		return err
	}

	childIdx := top.childIndex
	parent.keys = append(parent.keys, model.Value{})
	copy(parent.keys[childIdx+1:], parent.keys[childIdx:])
	parent.keys[childIdx] = separator

	parent.children = append(parent.children, 0)
	copy(parent.children[childIdx+2:], parent.children[childIdx+1:])
	parent.children[childIdx+1] = rightOffset

	if len(parent.keys) <= t.order {
		return t.writePage(parent)
	}
	return t.splitInternal(path[:len(path)-1], parent)
}

func (t *Tree) splitInternal(path []pathEntry, n *pageNode) error {
	mid := len(n.keys) / 2
	middleKey := n.keys[mid]

	leftKeys := append([]model.Value(nil), n.keys[:mid]...)
	rightKeys := append([]model.Value(nil), n.keys[mid+1:]...)
	leftChildren := append([]int64(nil), n.children[:mid+1]...)
	rightChildren := append([]int64(nil), n.children[mid+1:]...)

	rightOffset, err := t.allocate(t.internalPageSize)
	if err != nil {
		return err
	}
	right := &pageNode{offset: rightOffset, isLeaf: false, keys: rightKeys, children: rightChildren}
	left := &pageNode{offset: n.offset, isLeaf: false, keys: leftKeys, children: leftChildren}

	if err := t.writePage(left); err != nil {
		return err
	}
	if err := t.writePage(right); err != nil {
		return err
	}

	return t.propagateSplit(path, middleKey, n.offset, rightOffset)
}

func (t *Tree) newRoot(separator model.Value, leftOffset, rightOffset int64) error {
	offset, err := t.allocate(t.internalPageSize)
	if err != nil {
		return err
	}
	root := &pageNode{
		offset:   offset,
		isLeaf:   false,
		keys:     []model.Value{separator},
		children: []int64{leftOffset, rightOffset},
	}
	if err := t.writePage(root); err != nil {
		return err
	}
	t.rootOffset = offset
	return writeRootOffset(t.file, offset)
}

// Search returns every entry with the given key (spec §4.4 point
// search): it descends by the same rule used on insert, then walks
// forward along next_leaf, stopping at the first key greater than key.
func (t *Tree) Search(key model.Value) ([]indexrecord.Record, error) {
	_, leaf, err := t.descend(key)
	if err != nil {
		return nil, err
	}
	var results []indexrecord.Record
	for {
		for _, r := range leaf.records {
			c := model.Compare(r.Key, key)
			if c == 0 {
				results = append(results, r)
			} else if c > 0 {
				return results, nil
			}
		}
		if leaf.nextLeaf == noLeaf {
			return results, nil
		}
		if leaf, err = t.readPage(leaf.nextLeaf); err != nil {
			return nil, err
		}
	}
}

// SearchRange returns every entry with a key in [lo, hi], following
// leaf-sibling links (spec §4.4 range search).
func (t *Tree) SearchRange(lo, hi model.Value) ([]indexrecord.Record, error) {
	_, leaf, err := t.descend(lo)
	if err != nil {
		return nil, err
	}

	var results []indexrecord.Record
	for {
		for _, r := range leaf.records {
			if model.Compare(r.Key, lo) >= 0 && model.Compare(r.Key, hi) <= 0 {
				results = append(results, r)
			}
		}
		if leaf.nextLeaf == noLeaf {
			break
		}
		next, err := t.readPage(leaf.nextLeaf)
		if err != nil {
			return nil, err
		}
		if len(next.records) > 0 && model.Compare(next.records[0].Key, hi) > 0 {
			break
		}
		leaf = next
	}
	return results, nil
}

// Delete removes the (key, offset) entry from the tree. Underflowing
// leaves and internal nodes are rebalanced by redistributing from a
// sibling or merging into one; an emptied root always collapses to
// its sole surviving child (spec §4.4, Open Question resolved in
// DESIGN.md).
func (t *Tree) Delete(key model.Value, offset int32) (bool, error) {
	path, leaf, err := t.descendSearch(key)
	if err != nil {
		return false, err
	}

	found := -1
	for i, r := range leaf.records {
		if model.Compare(r.Key, key) == 0 && r.Offset == offset {
			found = i
			break
		}
	}
	if found < 0 {
		return false, nil
	}
	leaf.records = append(leaf.records[:found], leaf.records[found+1:]...)

	if err := t.writePage(leaf); err != nil {
		return false, err
	}

	minFill := t.order / 2
	if len(leaf.records) >= minFill || len(path) == 0 {
		return true, nil
	}
	return true, t.rebalanceLeaf(path, leaf)
}

func (t *Tree) rebalanceLeaf(path []pathEntry, leaf *pageNode) error {
	top := path[len(path)-1]
	parent, err := t.readPage(top.offset)
	if err != nil {
		return err
	}
	idx := top.childIndex

	if idx > 0 {
		leftSib, err := t.readPage(parent.children[idx-1])
		if err != nil {
			return err
		}
		minFill := t.order / 2
		if len(leftSib.records) > minFill {
			borrow := leftSib.records[len(leftSib.records)-1]
			leftSib.records = leftSib.records[:len(leftSib.records)-1]
			leaf.records = append([]indexrecord.Record{borrow}, leaf.records...)
			parent.keys[idx-1] = leaf.records[0].Key
			if err := t.writePage(leftSib); err != nil {
				return err
			}
			if err := t.writePage(leaf); err != nil {
				return err
			}
			return t.writePage(parent)
		}
	}
	if idx < len(parent.children)-1 {
		rightSib, err := t.readPage(parent.children[idx+1])
		if err != nil {
			return err
		}
		minFill := t.order / 2
		if len(rightSib.records) > minFill {
			borrow := rightSib.records[0]
			rightSib.records = rightSib.records[1:]
			leaf.records = append(leaf.records, borrow)
			parent.keys[idx] = rightSib.records[0].Key
			if err := t.writePage(rightSib); err != nil {
				return err
			}
			if err := t.writePage(leaf); err != nil {
				return err
			}
			return t.writePage(parent)
		}
	}

	// No sibling can spare an entry: merge with one.
	if idx > 0 {
		leftSib, err := t.readPage(parent.children[idx-1])
		if err != nil {
			return err
		}
		leftSib.records = append(leftSib.records, leaf.records...)
		leftSib.nextLeaf = leaf.nextLeaf
		if err := t.writePage(leftSib); err != nil {
			return err
		}
		return t.removeChild(path[:len(path)-1], parent, idx-1, idx)
	}

	rightSib, err := t.readPage(parent.children[idx+1])
	if err != nil {
		return err
	}
	leaf.records = append(leaf.records, rightSib.records...)
	leaf.nextLeaf = rightSib.nextLeaf
	if err := t.writePage(leaf); err != nil {
		return err
	}
	return t.removeChild(path[:len(path)-1], parent, idx, idx+1)
}

// removeChild drops the separator key and child at mergedIdx from
// parent (survivorIdx is the child that absorbed mergedIdx's entries),
// then rebalances parent itself if it underflows.
func (t *Tree) removeChild(grandparentPath []pathEntry, parent *pageNode, survivorIdx, mergedIdx int) error {
	keyIdx := survivorIdx
	if mergedIdx < survivorIdx {
		keyIdx = mergedIdx
	}
	parent.keys = append(parent.keys[:keyIdx], parent.keys[keyIdx+1:]...)
	parent.children = append(parent.children[:mergedIdx], parent.children[mergedIdx+1:]...)

	if len(grandparentPath) == 0 {
		// parent is root: collapse to its sole child if emptied.
		if len(parent.keys) == 0 && len(parent.children) == 1 {
			t.rootOffset = parent.children[0]
			return writeRootOffset(t.file, t.rootOffset)
		}
		return t.writePage(parent)
	}

	if err := t.writePage(parent); err != nil {
		return err
	}
	minFill := t.order / 2
	if len(parent.keys) >= minFill {
		return nil
	}
	return t.rebalanceInternal(grandparentPath, parent)
}

func (t *Tree) rebalanceInternal(path []pathEntry, n *pageNode) error {
	top := path[len(path)-1]
	parent, err := t.readPage(top.offset)
	if err != nil {
		return err
	}
	idx := top.childIndex
	minFill := t.order / 2

	if idx > 0 {
		leftSib, err := t.readPage(parent.children[idx-1])
		if err != nil {
			return err
		}
		if len(leftSib.keys) > minFill {
			borrowedKey := leftSib.keys[len(leftSib.keys)-1]
			borrowedChild := leftSib.children[len(leftSib.children)-1]
			leftSib.keys = leftSib.keys[:len(leftSib.keys)-1]
			leftSib.children = leftSib.children[:len(leftSib.children)-1]

			n.keys = append([]model.Value{parent.keys[idx-1]}, n.keys...)
			n.children = append([]int64{borrowedChild}, n.children...)
			parent.keys[idx-1] = borrowedKey

			if err := t.writePage(leftSib); err != nil {
				return err
			}
			if err := t.writePage(n); err != nil {
				return err
			}
			return t.writePage(parent)
		}
	}
	if idx < len(parent.children)-1 {
		rightSib, err := t.readPage(parent.children[idx+1])
		if err != nil {
			return err
		}
		if len(rightSib.keys) > minFill {
			borrowedKey := rightSib.keys[0]
			borrowedChild := rightSib.children[0]
			rightSib.keys = rightSib.keys[1:]
			rightSib.children = rightSib.children[1:]

			n.keys = append(n.keys, parent.keys[idx])
			n.children = append(n.children, borrowedChild)
			parent.keys[idx] = borrowedKey

			if err := t.writePage(rightSib); err != nil {
				return err
			}
			if err := t.writePage(n); err != nil {
				return err
			}
			return t.writePage(parent)
		}
	}

	if idx > 0 {
		leftSib, err := t.readPage(parent.children[idx-1])
		if err != nil {
			return err
		}
		leftSib.keys = append(leftSib.keys, parent.keys[idx-1])
		leftSib.keys = append(leftSib.keys, n.keys...)
		leftSib.children = append(leftSib.children, n.children...)
		if err := t.writePage(leftSib); err != nil {
			return err
		}
		return t.removeChild(path[:len(path)-1], parent, idx-1, idx)
	}

	rightSib, err := t.readPage(parent.children[idx+1])
	if err != nil {
		return err
	}
	n.keys = append(n.keys, parent.keys[idx])
	n.keys = append(n.keys, rightSib.keys...)
	n.children = append(n.children, rightSib.children...)
	if err := t.writePage(n); err != nil {
		return err
	}
	return t.removeChild(path[:len(path)-1], parent, idx, idx+1)
}

// ErrNotSupported is an UnsupportedFormat error for operations the tree
// declines; none of the tree's own methods currently return it.
var ErrNotSupported = reldberr.New(reldberr.UnsupportedFormat, "btreeidx", "operation not supported", nil)
