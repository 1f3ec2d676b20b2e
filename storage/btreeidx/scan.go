package btreeidx

import "reldb/indexrecord"

// leftmostLeaf walks down the left spine of the tree to the first leaf.
func (t *Tree) leftmostLeaf() (*pageNode, error) {
	offset := t.rootOffset
	for {
		n, err := t.readPage(offset)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			return n, nil
		}
		offset = n.children[0]
	}
}

// Scan returns every live entry in key order, following leaf-sibling
// links from the leftmost leaf.
func (t *Tree) Scan() ([]indexrecord.Record, error) {
	leaf, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	var all []indexrecord.Record
	for {
		all = append(all, leaf.records...)
		if leaf.nextLeaf == noLeaf {
			return all, nil
		}
		leaf, err = t.readPage(leaf.nextLeaf)
		if err != nil {
			return nil, err
		}
	}
}
