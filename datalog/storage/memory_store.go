package storage

import (
	"bytes"

	"github.com/google/btree"
	"github.com/wbrown/janus-incremental/datalog"
)

const btreeDegree = 32

// factItem orders facts by canonical key
type factItem struct {
	key  []byte
	fact datalog.Fact
}

func (i *factItem) Less(than btree.Item) bool {
	return bytes.Compare(i.key, than.(*factItem).key) < 0
}

// MemoryStore implements Store with an in-memory B-tree
type MemoryStore struct {
	tree *btree.BTree
}

// NewMemoryStore creates an empty B-tree store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tree: btree.New(btreeDegree)}
}

// Put adds a fact if its key is absent
func (s *MemoryStore) Put(key []byte, fact datalog.Fact) (bool, error) {
	item := &factItem{key: key, fact: fact}
	if s.tree.Has(item) {
		return false, nil
	}
	s.tree.ReplaceOrInsert(item)
	return true, nil
}

// Delete removes a key if present
func (s *MemoryStore) Delete(key []byte) (bool, error) {
	return s.tree.Delete(&factItem{key: key}) != nil, nil
}

// Has reports whether a key is present
func (s *MemoryStore) Has(key []byte) (bool, error) {
	return s.tree.Has(&factItem{key: key}), nil
}

// Scan visits facts in key order
func (s *MemoryStore) Scan(fn func(datalog.Fact) bool) error {
	s.tree.Ascend(func(i btree.Item) bool {
		return fn(i.(*factItem).fact)
	})
	return nil
}

// Len returns the number of facts
func (s *MemoryStore) Len() int {
	return s.tree.Len()
}

// Close drops all facts
func (s *MemoryStore) Close() error {
	s.tree.Clear(false)
	return nil
}
