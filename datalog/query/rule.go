package query

import (
	"strings"

	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/table"
)

// Rule is a built query: an ordered body of atoms, the free variables
// every result tuple carries, and optional implies heads.
//
// Rules are immutable once built; Implies returns a new rule.
type Rule struct {
	Find  []Symbol
	Body  []Atom
	Heads []Head

	// types holds the field type each positively bound variable takes
	types map[Symbol]datalog.ValueType
}

// FindFields returns the free variable names as result field names
func (r *Rule) FindFields() []string {
	fields := make([]string, len(r.Find))
	for i, s := range r.Find {
		fields[i] = string(s)
	}
	return fields
}

// VarType returns the type a positively bound variable takes
func (r *Rule) VarType(s Symbol) (datalog.ValueType, bool) {
	t, ok := r.types[s]
	return t, ok
}

// Tables returns every distinct table the rule reads or derives into,
// body tables first in atom order
func (r *Rule) Tables() []*table.Table {
	var out []*table.Table
	seen := make(map[*table.Table]bool)
	add := func(t *table.Table) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, a := range r.Body {
		add(a.Table)
	}
	for _, h := range r.Heads {
		add(h.Table)
	}
	return out
}

// HeadTables returns the distinct implies targets
func (r *Rule) HeadTables() map[*table.Table]bool {
	heads := make(map[*table.Table]bool, len(r.Heads))
	for _, h := range r.Heads {
		heads[h.Table] = true
	}
	return heads
}

// Recursive reports whether a positive body atom reads a head table
func (r *Rule) Recursive() bool {
	heads := r.HeadTables()
	for _, a := range r.Body {
		if !a.Negated && heads[a.Table] {
			return true
		}
	}
	return false
}

// String renders find <- body => heads
func (r *Rule) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, s := range r.Find {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString("?" + string(s))
	}
	sb.WriteString("] <- ")
	for i, a := range r.Body {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(a.String())
	}
	if len(r.Heads) > 0 {
		sb.WriteString(" => ")
		for i, h := range r.Heads {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(h.String())
		}
	}
	return sb.String()
}

// clone copies the rule's slices so callers can extend it safely
func (r *Rule) clone() *Rule {
	out := &Rule{
		Find:  append([]Symbol(nil), r.Find...),
		Body:  append([]Atom(nil), r.Body...),
		Heads: append([]Head(nil), r.Heads...),
		types: make(map[Symbol]datalog.ValueType, len(r.types)),
	}
	for s, t := range r.types {
		out.types[s] = t
	}
	return out
}
