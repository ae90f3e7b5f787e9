package executor

import (
	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/query"
)

// Tuple is one binding: values positioned by the owning relation's symbols
type Tuple []datalog.Value

// Relation is a deduplicated set of bindings over named variables. The
// body of a rule is evaluated by growing one Relation atom by atom.
//
// Relations are immutable; every operation returns a new one.
type Relation struct {
	symbols []query.Symbol
	index   map[query.Symbol]int
	tuples  []Tuple
}

// NewRelation creates a relation, dropping duplicate tuples while keeping
// first-seen order
func NewRelation(symbols []query.Symbol, tuples []Tuple) *Relation {
	r := &Relation{symbols: symbols, index: make(map[query.Symbol]int, len(symbols))}
	for i, s := range symbols {
		r.index[s] = i
	}
	seen := NewTupleKeyMapWithCapacity(len(tuples))
	for _, t := range tuples {
		key := NewTupleKeyFull(t)
		if seen.Exists(key) {
			continue
		}
		seen.Put(key, true)
		r.tuples = append(r.tuples, t)
	}
	return r
}

// unitRelation holds exactly one empty binding, the start of every body
func unitRelation() *Relation {
	return &Relation{index: map[query.Symbol]int{}, tuples: []Tuple{{}}}
}

// Symbols returns the variables in column order
func (r *Relation) Symbols() []query.Symbol {
	return r.symbols
}

// ColumnIndex returns the position of a symbol, or -1
func (r *Relation) ColumnIndex(s query.Symbol) int {
	if i, ok := r.index[s]; ok {
		return i
	}
	return -1
}

// Tuples returns the bindings in order
func (r *Relation) Tuples() []Tuple {
	return r.tuples
}

// Size returns the number of bindings
func (r *Relation) Size() int {
	return len(r.tuples)
}

// IsEmpty returns true if the relation has no bindings
func (r *Relation) IsEmpty() bool {
	return len(r.tuples) == 0
}

// Lookup returns a function resolving symbols within one tuple
func (r *Relation) Lookup(t Tuple) func(query.Symbol) (datalog.Value, bool) {
	return func(s query.Symbol) (datalog.Value, bool) {
		i, ok := r.index[s]
		if !ok {
			return nil, false
		}
		return t[i], true
	}
}

// Project returns result records holding only the given symbols, with
// duplicates collapsed
func (r *Relation) Project(symbols []query.Symbol) []datalog.Record {
	indices := make([]int, len(symbols))
	for i, s := range symbols {
		indices[i] = r.ColumnIndex(s)
	}
	seen := NewTupleKeyMapWithCapacity(len(r.tuples))
	var out []datalog.Record
	for _, t := range r.tuples {
		key := NewTupleKey(t, indices)
		if seen.Exists(key) {
			continue
		}
		seen.Put(key, true)
		rec := make(datalog.Record, len(symbols))
		for i, s := range symbols {
			rec[string(s)] = key.values[i]
		}
		out = append(out, rec)
	}
	return out
}
