package executor

import (
	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/query"
)

// atomPlan classifies the fields of one atom against the variables a
// relation has already bound
type atomPlan struct {
	fixed     map[string]datalog.Value // field -> literal
	joinField []string                 // fields whose variable is already bound
	joinCol   []int                    // relation column for each joinField
	newSyms   []query.Symbol           // variables this atom binds first, in field order
	newField  []string                 // first field carrying each new symbol
	sameAs    map[string]string        // repeated new-variable field -> its first field
}

func planAtom(rel *Relation, atom query.Atom) atomPlan {
	p := atomPlan{fixed: make(map[string]datalog.Value), sameAs: make(map[string]string)}
	first := make(map[query.Symbol]string)
	for _, f := range atom.Pattern.Fields() {
		switch term := atom.Pattern[f].(type) {
		case query.Constant:
			p.fixed[f] = term.Value
		case query.Variable:
			if col := rel.ColumnIndex(term.Name); col >= 0 {
				p.joinField = append(p.joinField, f)
				p.joinCol = append(p.joinCol, col)
				continue
			}
			if ff, ok := first[term.Name]; ok {
				p.sameAs[f] = ff
				continue
			}
			first[term.Name] = f
			p.newSyms = append(p.newSyms, term.Name)
			p.newField = append(p.newField, f)
		}
	}
	return p
}

// admits applies the constraints that do not depend on a binding: fixed
// fields, and repeated variables within the atom
func (p atomPlan) admits(fact datalog.Fact) bool {
	for f, v := range p.fixed {
		if !datalog.ValuesEqual(fact[f], v) {
			return false
		}
	}
	for f, ff := range p.sameAs {
		if !datalog.ValuesEqual(fact[f], fact[ff]) {
			return false
		}
	}
	return true
}

// index groups the admitted facts by their join-field values
func (p atomPlan) index(facts []datalog.Fact) (*TupleKeyMap, int) {
	idx := NewTupleKeyMapWithCapacity(len(facts))
	admitted := 0
	for _, fact := range facts {
		if !p.admits(fact) {
			continue
		}
		admitted++
		key := NewFactKey(fact, p.joinField)
		if prev, ok := idx.Get(key); ok {
			idx.Put(key, append(prev.([]datalog.Fact), fact))
		} else {
			idx.Put(key, []datalog.Fact{fact})
		}
	}
	return idx, admitted
}

// JoinAtom extends every binding of rel with each fact consistent with it.
// Bindings with no consistent fact are dropped. Variables the atom binds
// first become new trailing columns.
func JoinAtom(rel *Relation, atom query.Atom, facts []datalog.Fact) *Relation {
	plan := planAtom(rel, atom)
	idx, _ := plan.index(facts)

	symbols := make([]query.Symbol, 0, len(rel.symbols)+len(plan.newSyms))
	symbols = append(symbols, rel.symbols...)
	symbols = append(symbols, plan.newSyms...)

	var out []Tuple
	for _, t := range rel.tuples {
		matches, ok := idx.Get(NewTupleKey(t, plan.joinCol))
		if !ok {
			continue
		}
		for _, fact := range matches.([]datalog.Fact) {
			ext := make(Tuple, len(t), len(symbols))
			copy(ext, t)
			for _, f := range plan.newField {
				ext = append(ext, fact[f])
			}
			out = append(out, ext)
		}
	}
	return NewRelation(symbols, out)
}

// AntiJoin keeps the bindings of rel for which no fact matches the atom.
// Variables of the atom that rel has not bound act as wildcards, though a
// wildcard repeated within the atom must still take one value.
func AntiJoin(rel *Relation, atom query.Atom, facts []datalog.Fact) *Relation {
	plan := planAtom(rel, atom)
	idx, _ := plan.index(facts)

	var out []Tuple
	for _, t := range rel.tuples {
		if !idx.Exists(NewTupleKey(t, plan.joinCol)) {
			out = append(out, t)
		}
	}
	return &Relation{symbols: rel.symbols, index: rel.index, tuples: out}
}
