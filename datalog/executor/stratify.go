package executor

import (
	"strings"

	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/query"
	"github.com/wbrown/janus-incremental/datalog/table"
)

// depEdge says the head table depends on the body table
type depEdge struct {
	to      int
	negated bool
}

// depGraph is the table dependency graph of a set of rules
type depGraph struct {
	tables []*table.Table
	ids    map[*table.Table]int
	edges  [][]depEdge
}

func (g *depGraph) node(t *table.Table) int {
	if id, ok := g.ids[t]; ok {
		return id
	}
	id := len(g.tables)
	g.ids[t] = id
	g.tables = append(g.tables, t)
	g.edges = append(g.edges, nil)
	return id
}

func buildDepGraph(rules []*query.Rule) *depGraph {
	g := &depGraph{ids: make(map[*table.Table]int)}
	for _, r := range rules {
		for _, a := range r.Body {
			from := g.node(a.Table)
			for _, h := range r.Heads {
				g.edges[from] = append(g.edges[from], depEdge{to: g.node(h.Table), negated: a.Negated})
			}
		}
	}
	return g
}

// CheckStratification rejects rule sets in which a table depends on itself
// through a negated atom: body table -> head table edges are followed, and
// a negated edge inside one strongly connected component has no
// well-defined resolution order.
func CheckStratification(rules ...*query.Rule) error {
	g := buildDepGraph(rules)
	comp := tarjanSCC(g)
	for from, edges := range g.edges {
		for _, e := range edges {
			if e.negated && comp[from] == comp[e.to] {
				return datalog.Evaluationf(datalog.ErrNotStratifiable,
					"%s is negated in a rule that derives %s, and they are mutually recursive (%s)",
					g.tables[from], g.tables[e.to], cyclePath(g, comp, comp[from]))
			}
		}
	}
	return nil
}

// tarjanSCC returns the component number of every node
func tarjanSCC(g *depGraph) []int {
	var (
		index   = 0
		next    = 0
		stack   []int
		indices = make([]int, len(g.tables))
		lowlink = make([]int, len(g.tables))
		onStack = make([]bool, len(g.tables))
		comp    = make([]int, len(g.tables))
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(v int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.edges[v] {
			w := e.to
			if indices[w] < 0 {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indices[w] < lowlink[v] {
				lowlink[v] = indices[w]
			}
		}

		if lowlink[v] == indices[v] {
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp[w] = next
				if w == v {
					break
				}
			}
			next++
		}
	}

	for v := range g.tables {
		if indices[v] < 0 {
			strongConnect(v)
		}
	}
	return comp
}

func cyclePath(g *depGraph, comp []int, c int) string {
	var names []string
	for v, t := range g.tables {
		if comp[v] == c {
			names = append(names, t.String())
		}
	}
	return strings.Join(names, " <-> ")
}
