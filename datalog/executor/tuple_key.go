package executor

import (
	"github.com/cespare/xxhash/v2"
	"github.com/wbrown/janus-incremental/datalog"
)

// TupleKey is a hashable key for a tuple or a subset of its values
type TupleKey struct {
	hash   uint64
	values []datalog.Value
}

// NewTupleKey creates a key from specific tuple positions
func NewTupleKey(tuple Tuple, indices []int) TupleKey {
	values := make([]datalog.Value, len(indices))
	for i, idx := range indices {
		values[i] = tuple[idx]
	}
	return TupleKey{hash: hashValues(values), values: values}
}

// NewTupleKeyFull creates a key from an entire tuple
func NewTupleKeyFull(tuple Tuple) TupleKey {
	// The tuple is immutable in our usage, so no copy
	return TupleKey{hash: hashValues(tuple), values: tuple}
}

// NewFactKey creates a key from the named fields of a fact
func NewFactKey(fact datalog.Fact, fields []string) TupleKey {
	values := make([]datalog.Value, len(fields))
	for i, f := range fields {
		values[i] = fact[f]
	}
	return TupleKey{hash: hashValues(values), values: values}
}

// hashValues hashes the canonical encoding of each value, so equal
// normalized values always hash equally
func hashValues(values []datalog.Value) uint64 {
	d := xxhash.New()
	var scratch [32]byte
	for _, v := range values {
		if v == nil {
			_, _ = d.Write([]byte{0})
			continue
		}
		_, _ = d.Write(datalog.AppendValue(scratch[:0], v))
	}
	return d.Sum64()
}

// Equal checks if two keys are equal
func (k TupleKey) Equal(other TupleKey) bool {
	return k.hash == other.hash && tupleValuesEqual(k.values, other.values)
}

// TupleKeyMap is a hash map keyed by TupleKey with collision chaining
type TupleKeyMap struct {
	m    map[uint64][]mapEntry
	size int
}

type mapEntry struct {
	values []datalog.Value // The key values for collision checking
	value  interface{}     // The stored value
}

// NewTupleKeyMap creates a new TupleKeyMap
func NewTupleKeyMap() *TupleKeyMap {
	return &TupleKeyMap{m: make(map[uint64][]mapEntry)}
}

// NewTupleKeyMapWithCapacity creates a TupleKeyMap pre-sized for expectedSize keys
func NewTupleKeyMapWithCapacity(expectedSize int) *TupleKeyMap {
	return &TupleKeyMap{m: make(map[uint64][]mapEntry, expectedSize)}
}

// Put adds or updates a key-value pair
func (m *TupleKeyMap) Put(key TupleKey, value interface{}) {
	entries := m.m[key.hash]
	for i := range entries {
		if tupleValuesEqual(entries[i].values, key.values) {
			entries[i].value = value
			return
		}
	}
	m.m[key.hash] = append(entries, mapEntry{values: key.values, value: value})
	m.size++
}

// Get retrieves a value by key
func (m *TupleKeyMap) Get(key TupleKey) (interface{}, bool) {
	for _, entry := range m.m[key.hash] {
		if tupleValuesEqual(entry.values, key.values) {
			return entry.value, true
		}
	}
	return nil, false
}

// Exists checks if a key exists
func (m *TupleKeyMap) Exists(key TupleKey) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the number of distinct keys
func (m *TupleKeyMap) Len() int {
	return m.size
}

func tupleValuesEqual(a, b []datalog.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !datalog.ValuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}
