package annotations

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// RelationRenderer provides pretty-printing for named relations and atoms
type RelationRenderer struct {
	useColor bool
}

// NewRelationRenderer creates a new relation renderer
func NewRelationRenderer(useColor bool) *RelationRenderer {
	return &RelationRenderer{useColor: useColor}
}

// RenderRelation renders Name([fields], N Tuples)
func (r *RelationRenderer) RenderRelation(name string, fields []string, tupleCount int) string {
	if name == "" {
		name = "Relation"
	}
	attrList := strings.Join(fields, " ")

	if r.useColor {
		return fmt.Sprintf("%s%s%s%s%s",
			color.BlueString(name+"(["),
			color.CyanString(attrList),
			color.BlueString("], "),
			r.colorizeCount("Tuples", tupleCount),
			color.BlueString(")"))
	}

	return fmt.Sprintf("%s([%s], %d Tuples)", name, attrList, tupleCount)
}

// RenderAtom renders an atom pattern such as Edges{from: ?x, to: 3},
// prefixing negated atoms with "not".
func (r *RelationRenderer) RenderAtom(atom string, negated bool) string {
	if negated {
		atom = "not " + atom
	}
	if r.useColor {
		return color.CyanString(atom)
	}
	return atom
}

func (r *RelationRenderer) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)
	if !r.useColor {
		return text
	}
	return color.MagentaString(text)
}
