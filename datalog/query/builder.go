package query

import (
	"sort"

	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/table"
)

// Builder collects the atoms of a rule body. It is handed to the body
// function passed to Build; the first definition problem is remembered
// and reported by Build.
type Builder struct {
	find    []Symbol
	findSet bool
	atoms   []Atom
	err     error
}

// Build runs fn against a fresh Builder and validates the result.
// Every failure is a *datalog.DefinitionError.
func Build(fn func(b *Builder)) (*Rule, error) {
	if fn == nil {
		return nil, datalog.Definitionf("query body function is nil")
	}
	b := &Builder{}
	fn(b)
	if b.err != nil {
		return nil, b.err
	}
	return b.rule()
}

// Find declares the free variables every result tuple carries. Without
// it, the free variables are all variables bound by a positive atom.
func (b *Builder) Find(names ...string) *Builder {
	b.findSet = true
	for _, n := range names {
		b.find = append(b.find, Symbol(n))
	}
	return b
}

// Match appends a positive atom: bindings extend with every fact of t
// consistent with p
func (b *Builder) Match(t *table.Table, p Pattern) *Builder {
	b.add(t, p, false)
	return b
}

// Not appends a negated atom: a binding survives only if no fact of t
// matches p under it
func (b *Builder) Not(t *table.Table, p Pattern) *Builder {
	b.add(t, p, true)
	return b
}

// Table returns a proxy that appends atoms over t
func (b *Builder) Table(t *table.Table) Proxy {
	return Proxy{b: b, t: t}
}

// Proxy stands for one table inside a body function
type Proxy struct {
	b *Builder
	t *table.Table
}

// Match appends a positive atom over the proxied table
func (p Proxy) Match(pattern Pattern) { p.b.Match(p.t, pattern) }

// Not appends a negated atom over the proxied table
func (p Proxy) Not(pattern Pattern) { p.b.Not(p.t, pattern) }

func (b *Builder) add(t *table.Table, p Pattern, negated bool) {
	if b.err != nil {
		return
	}
	pattern, err := checkPattern(t, p)
	if err != nil {
		b.err = err
		return
	}
	b.atoms = append(b.atoms, Atom{Table: t, Pattern: pattern, Negated: negated})
}

// checkPattern validates a pattern against a table schema and returns a
// copy with fixed values normalized
func checkPattern(t *table.Table, p Pattern) (Pattern, error) {
	if !t.Declared() {
		return nil, datalog.Definitionf("query references an undeclared table")
	}
	out := make(Pattern, len(p))
	for _, f := range p.Fields() {
		ft, ok := t.FieldType(f)
		if !ok {
			return nil, datalog.Definitionf("%s has no field %q", t, f)
		}
		switch term := p[f].(type) {
		case Variable:
			if term.Name == "" {
				return nil, datalog.Definitionf("%s.%s: empty variable name", t, f)
			}
			out[f] = term
		case Constant:
			v, err := datalog.Normalize(term.Value)
			if err != nil {
				return nil, datalog.Definitionf("%s.%s: %v", t, f, err)
			}
			if vt, _ := datalog.TypeOf(v); vt != ft {
				return nil, datalog.Definitionf("%s.%s: fixed value %s is %s, field is %s", t, f, datalog.FormatValue(v), vt, ft)
			}
			out[f] = Constant{Value: v}
		default:
			return nil, datalog.Definitionf("%s.%s: nil term", t, f)
		}
	}
	return out, nil
}

func (b *Builder) rule() (*Rule, error) {
	if len(b.atoms) == 0 {
		return nil, datalog.Definitionf("query body has no atoms")
	}

	types := make(map[Symbol]datalog.ValueType)
	// Variables seen only in negated atoms so far
	negOnly := make(map[Symbol]bool)
	for _, a := range b.atoms {
		for _, f := range a.Pattern.Fields() {
			v, ok := a.Pattern[f].(Variable)
			if !ok {
				continue
			}
			ft, _ := a.Table.FieldType(f)
			if bound, ok := types[v.Name]; ok {
				if bound != ft {
					return nil, datalog.Definitionf("variable %s is %s in %s but %s elsewhere", v, ft, a, bound)
				}
				continue
			}
			if a.Negated {
				negOnly[v.Name] = true
				continue
			}
			if negOnly[v.Name] {
				return nil, datalog.Definitionf("variable %s is used in a negated atom before %s binds it", v, a)
			}
			types[v.Name] = ft
		}
	}

	find := b.find
	if !b.findSet {
		for s := range types {
			find = append(find, s)
		}
		sort.Slice(find, func(i, j int) bool { return find[i] < find[j] })
	}
	seen := make(map[Symbol]bool, len(find))
	for _, s := range find {
		if seen[s] {
			return nil, datalog.Definitionf("variable ?%s appears twice in find", s)
		}
		seen[s] = true
		if _, ok := types[s]; !ok {
			return nil, datalog.Definitionf("find variable ?%s is not bound by any positive atom", s)
		}
	}

	return &Rule{Find: find, Body: b.atoms, types: types}, nil
}

// HeadBuilder collects implies targets
type HeadBuilder struct {
	rule  *Rule
	heads []Head
	err   error
}

// Into declares that every body result, projected through p, is asserted
// into t. The pattern must cover every field of t's schema.
func (hb *HeadBuilder) Into(t *table.Table, p Pattern) *HeadBuilder {
	if hb.err != nil {
		return hb
	}
	pattern, err := checkPattern(t, p)
	if err != nil {
		hb.err = err
		return hb
	}
	for _, f := range t.Schema().Fields() {
		term, ok := pattern[f]
		if !ok {
			hb.err = datalog.Definitionf("implies into %s does not set field %q", t, f)
			return hb
		}
		v, ok := term.(Variable)
		if !ok {
			continue
		}
		vt, bound := hb.rule.types[v.Name]
		if !bound {
			hb.err = datalog.Definitionf("implies into %s: variable %s is not bound by the query body", t, v)
			return hb
		}
		if ft, _ := t.FieldType(f); ft != vt {
			hb.err = datalog.Definitionf("implies into %s.%s: variable %s is %s, field is %s", t, f, v, vt, ft)
			return hb
		}
	}
	hb.heads = append(hb.heads, Head{Table: t, Pattern: pattern})
	return hb
}

// Implies returns a copy of r extended with the heads fn declares. When a
// head table is also read by the body the rule is recursive and evaluates
// to a fixpoint.
func (r *Rule) Implies(fn func(hb *HeadBuilder)) (*Rule, error) {
	if fn == nil {
		return nil, datalog.Definitionf("implies body function is nil")
	}
	hb := &HeadBuilder{rule: r}
	fn(hb)
	if hb.err != nil {
		return nil, hb.err
	}
	if len(hb.heads) == 0 {
		return nil, datalog.Definitionf("implies declares no target table")
	}
	out := r.clone()
	out.Heads = append(out.Heads, hb.heads...)
	return out, nil
}
