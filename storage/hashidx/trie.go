package hashidx

import (
	"encoding/binary"
	"os"

	"reldb/reldberr"
)

// trieNode is one node of the persisted binary trie (spec §4.5):
// leaves carry a bucket page id, internal nodes carry only their
// children (depth is implicit from the traversal).
type trieNode struct {
	isLeaf bool
	pageID int32
	left   *trieNode
	right  *trieNode
}

const (
	tagLeaf     = 0
	tagInternal = 1
)

func encodeNode(n *trieNode, buf *[]byte) {
	if n.isLeaf {
		*buf = append(*buf, tagLeaf)
		var pidBuf [4]byte
		binary.LittleEndian.PutUint32(pidBuf[:], uint32(n.pageID))
		*buf = append(*buf, pidBuf[:]...)
		return
	}
	*buf = append(*buf, tagInternal)
	encodeNode(n.left, buf)
	encodeNode(n.right, buf)
}

func decodeNode(data []byte, pos *int) (*trieNode, error) {
	if *pos >= len(data) {
		return nil, reldberr.New(reldberr.CorruptFile, "hashidx.decodeNode", "truncated trie file", nil)
	}
	tag := data[*pos]
	*pos++
	switch tag {
	case tagLeaf:
		if *pos+4 > len(data) {
			return nil, reldberr.New(reldberr.CorruptFile, "hashidx.decodeNode", "truncated trie leaf", nil)
		}
		pid := int32(binary.LittleEndian.Uint32(data[*pos : *pos+4]))
		*pos += 4
		return &trieNode{isLeaf: true, pageID: pid}, nil
	case tagInternal:
		left, err := decodeNode(data, pos)
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(data, pos)
		if err != nil {
			return nil, err
		}
		return &trieNode{isLeaf: false, left: left, right: right}, nil
	default:
		return nil, reldberr.New(reldberr.CorruptFile, "hashidx.decodeNode", "unknown trie node tag", nil)
	}
}

// saveTrie rewrites the trie file in full (spec §4.5: "rewritten in
// full on each structural change... the trie is tiny vs. the data").
func (idx *Index) saveTrie() error {
	var buf []byte
	encodeNode(idx.root, &buf)

	tmp := idx.triePath + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return reldberr.New(reldberr.CorruptFile, "hashidx.saveTrie", "write temp trie file", err)
	}
	if err := os.Rename(tmp, idx.triePath); err != nil {
		return reldberr.New(reldberr.CorruptFile, "hashidx.saveTrie", "rename temp trie file", err)
	}
	return nil
}

func (idx *Index) loadTrie() error {
	data, err := os.ReadFile(idx.triePath)
	if err != nil {
		return reldberr.New(reldberr.CorruptFile, "hashidx.loadTrie", "read trie file", err)
	}
	pos := 0
	root, err := decodeNode(data, &pos)
	if err != nil {
		return err
	}
	idx.root = root
	return nil
}

// descendTrie walks bits from the root to the leaf they select,
// returning the leaf and its depth (distance from root).
func descendTrie(root *trieNode, bits [GlobalDepth]bool) (*trieNode, int) {
	n := root
	depth := 0
	for !n.isLeaf {
		if bits[depth] {
			n = n.right
		} else {
			n = n.left
		}
		depth++
	}
	return n, depth
}
