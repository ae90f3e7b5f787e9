package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/table"
)

// Symbol names a logical variable, scoped to one rule
type Symbol string

// String returns the string representation
func (s Symbol) String() string {
	return string(s)
}

// Term is one field of a pattern: either a variable or a fixed value
type Term interface {
	IsVariable() bool
	String() string
	term()
}

// Variable binds the field's value to a named logical variable
type Variable struct {
	Name Symbol
}

func (v Variable) IsVariable() bool { return true }
func (v Variable) String() string   { return "?" + string(v.Name) }
func (Variable) term()              {}

// Constant requires the field to equal a literal value
type Constant struct {
	Value datalog.Value
}

func (c Constant) IsVariable() bool { return false }
func (c Constant) String() string   { return datalog.FormatValue(c.Value) }
func (Constant) term()              {}

// Var makes a variable term
func Var(name string) Variable {
	return Variable{Name: Symbol(name)}
}

// Fixed makes a literal equality term
func Fixed(v datalog.Value) Constant {
	return Constant{Value: v}
}

// Pattern maps table fields to terms. Fields the pattern omits are
// unconstrained.
type Pattern map[string]Term

// Fields returns the pattern's field names in sorted order
func (p Pattern) Fields() []string {
	fields := make([]string, 0, len(p))
	for f := range p {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Symbols returns the variables the pattern mentions, in field order,
// without duplicates
func (p Pattern) Symbols() []Symbol {
	var symbols []Symbol
	seen := make(map[Symbol]bool)
	for _, f := range p.Fields() {
		if v, ok := p[f].(Variable); ok && !seen[v.Name] {
			seen[v.Name] = true
			symbols = append(symbols, v.Name)
		}
	}
	return symbols
}

// String renders {field: term, ...} with fields sorted
func (p Pattern) String() string {
	parts := make([]string, 0, len(p))
	for _, f := range p.Fields() {
		parts = append(parts, f+": "+p[f].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Atom is one (possibly negated) reference to a table inside a rule body
type Atom struct {
	Table   *table.Table
	Pattern Pattern
	Negated bool
}

// String renders Table{field: term, ...}, prefixed with "not " if negated
func (a Atom) String() string {
	s := a.Table.String() + a.Pattern.String()
	if a.Negated {
		return "not " + s
	}
	return s
}

// Head is an implies target: every body result is projected through the
// pattern and asserted into the table
type Head struct {
	Table   *table.Table
	Pattern Pattern
}

// String renders Table{field: term, ...}
func (h Head) String() string {
	return h.Table.String() + h.Pattern.String()
}

// Project builds the head fact for one body result
func (h Head) Project(bound func(Symbol) (datalog.Value, bool)) (datalog.Fact, error) {
	fact := make(datalog.Fact, len(h.Pattern))
	for f, t := range h.Pattern {
		switch term := t.(type) {
		case Variable:
			v, ok := bound(term.Name)
			if !ok {
				return nil, fmt.Errorf("head %s: variable %s is unbound", h, term)
			}
			fact[f] = v
		case Constant:
			fact[f] = term.Value
		}
	}
	return fact, nil
}
