package hashidx

import (
	"reldb/indexrecord"
	"reldb/model"
)

// insertIntoChain appends rec to the first non-full page in the chain
// starting at startPid. It reports whether an existing page accepted
// the record and, either way, the pid of the chain's last page.
func (idx *Index) insertIntoChain(startPid int32, rec indexrecord.Record) (bool, int32, error) {
	pid := startPid
	for {
		page, err := idx.readPage(pid)
		if err != nil {
			return false, 0, err
		}
		if !page.isFull(idx.capacity) {
			page.records = append(page.records, rec)
			if err := idx.writePage(page); err != nil {
				return false, 0, err
			}
			return true, pid, nil
		}
		if page.next == noNext {
			return false, pid, nil
		}
		pid = page.next
	}
}

// appendToChain inserts rec into the chain, extending it with a fresh
// overflow page if every existing page is full (spec §4.5 step 3).
func (idx *Index) appendToChain(startPid int32, rec indexrecord.Record) error {
	ok, lastPid, err := idx.insertIntoChain(startPid, rec)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	newPid, err := idx.allocatePage()
	if err != nil {
		return err
	}
	newPage := &bucketPage{pid: newPid, next: noNext, records: []indexrecord.Record{rec}}
	if err := idx.writePage(newPage); err != nil {
		return err
	}
	lastPage, err := idx.readPage(lastPid)
	if err != nil {
		return err
	}
	lastPage.next = newPid
	return idx.writePage(lastPage)
}

func (idx *Index) collectChain(startPid int32) ([]indexrecord.Record, error) {
	var all []indexrecord.Record
	pid := startPid
	for pid != noNext {
		page, err := idx.readPage(pid)
		if err != nil {
			return nil, err
		}
		all = append(all, page.records...)
		pid = page.next
	}
	return all, nil
}

// Insert adds rec to the index, splitting the trie leaf it lands on
// when its bucket chain is full and the trie has headroom, or else
// extending the chain with an overflow page (spec §4.5).
func (idx *Index) Insert(rec indexrecord.Record) error {
	bits := hashBits(idx.format, rec.Key)
	leaf, depth := descendTrie(idx.root, bits)

	ok, lastPid, err := idx.insertIntoChain(leaf.pageID, rec)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if depth >= GlobalDepth-1 {
		newPid, err := idx.allocatePage()
		if err != nil {
			return err
		}
		newPage := &bucketPage{pid: newPid, next: noNext, records: []indexrecord.Record{rec}}
		if err := idx.writePage(newPage); err != nil {
			return err
		}
		lastPage, err := idx.readPage(lastPid)
		if err != nil {
			return err
		}
		lastPage.next = newPid
		return idx.writePage(lastPage)
	}

	return idx.splitLeaf(leaf, depth, rec)
}

// splitLeaf converts a full trie leaf into an internal node with two
// fresh leaves, redistributing every record in its old chain (plus
// the new one) by the next hash bit (spec §4.5 step 2).
func (idx *Index) splitLeaf(leaf *trieNode, depth int, rec indexrecord.Record) error {
	existing, err := idx.collectChain(leaf.pageID)
	if err != nil {
		return err
	}
	all := append(existing, rec)

	leftPid, err := idx.allocatePage()
	if err != nil {
		return err
	}
	rightPid, err := idx.allocatePage()
	if err != nil {
		return err
	}

	leaf.isLeaf = false
	leaf.left = &trieNode{isLeaf: true, pageID: leftPid}
	leaf.right = &trieNode{isLeaf: true, pageID: rightPid}

	for _, r := range all {
		bits := hashBits(idx.format, r.Key)
		target := leftPid
		if bits[depth] {
			target = rightPid
		}
		if err := idx.appendToChain(target, r); err != nil {
			return err
		}
	}

	return idx.saveTrie()
}

// Search returns every entry with the given key (spec §4.5: "equality
// comparison uses the original key, not the hash").
func (idx *Index) Search(key model.Value) ([]indexrecord.Record, error) {
	bits := hashBits(idx.format, key)
	leaf, _ := descendTrie(idx.root, bits)

	chain, err := idx.collectChain(leaf.pageID)
	if err != nil {
		return nil, err
	}
	var results []indexrecord.Record
	for _, r := range chain {
		if model.Compare(r.Key, key) == 0 {
			results = append(results, r)
		}
	}
	return results, nil
}

// Delete removes the first (key, offset) match from its bucket chain,
// unlinking an emptied overflow page from its predecessor (spec §4.5).
func (idx *Index) Delete(key model.Value, offset int32) (bool, error) {
	bits := hashBits(idx.format, key)
	leaf, _ := descendTrie(idx.root, bits)

	prevPid := int32(noNext)
	pid := leaf.pageID
	for pid != noNext {
		page, err := idx.readPage(pid)
		if err != nil {
			return false, err
		}
		for i, r := range page.records {
			if model.Compare(r.Key, key) == 0 && r.Offset == offset {
				page.records = append(page.records[:i], page.records[i+1:]...)
				if len(page.records) == 0 && prevPid != noNext {
					prevPage, err := idx.readPage(prevPid)
					if err != nil {
						return false, err
					}
					prevPage.next = page.next
					return true, idx.writePage(prevPage)
				}
				return true, idx.writePage(page)
			}
		}
		prevPid = pid
		pid = page.next
	}
	return false, nil
}

// Scan performs an in-order traversal of the trie, concatenating each
// leaf's bucket-and-overflow contents (spec §4.5 iteration).
func (idx *Index) Scan() ([]indexrecord.Record, error) {
	return idx.scanNode(idx.root)
}

func (idx *Index) scanNode(n *trieNode) ([]indexrecord.Record, error) {
	if n.isLeaf {
		return idx.collectChain(n.pageID)
	}
	left, err := idx.scanNode(n.left)
	if err != nil {
		return nil, err
	}
	right, err := idx.scanNode(n.right)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}
