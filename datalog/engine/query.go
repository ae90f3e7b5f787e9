package engine

import (
	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/query"
	"github.com/wbrown/janus-incremental/datalog/table"
	"github.com/wbrown/janus-incremental/datalog/view"
)

// Query is a built rule bound to an engine. It holds read references to
// its tables, never ownership.
type Query struct {
	engine *Engine
	rule   *query.Rule
	name   string

	runners []runner
}

type runner interface {
	RunQuery() error
}

// Rule returns the underlying rule
func (q *Query) Rule() *query.Rule {
	return q.rule
}

// Named sets the name that views made from now on carry in annotations
// and errors. It returns q so it chains with View and ViewExt.
func (q *Query) Named(name string) *Query {
	q.name = name
	return q
}

// Implies returns a new query whose results are also asserted into the
// tables fn declares. If a target table is read by the body, evaluation
// iterates to a fixpoint.
func (q *Query) Implies(fn func(hb *query.HeadBuilder)) (*Query, error) {
	rule, err := q.rule.Implies(fn)
	if err != nil {
		q.engine.definitionFailed(err)
		return nil, err
	}
	// Every rule with heads joins the program checked for stratification
	q.engine.evaluator.Register(rule)
	return &Query{engine: q.engine, rule: rule, name: q.name}, nil
}

// View materializes the query and evaluates it once. Close the view to
// stop tracking changes for it.
func (q *Query) View() (*view.View, error) {
	src := q.newSource()
	v := view.New(src, q.viewOptions())
	if err := v.RunQuery(); err != nil {
		_ = v.Close()
		return nil, err
	}
	q.track(src, v)
	return v, nil
}

// ViewExt materializes the query as a reactive view. It is not evaluated
// until the first RunQuery, so effects chained onto it observe the initial
// result as Added diffs.
func (q *Query) ViewExt() (*view.Ext, error) {
	if err := q.engine.evaluator.CheckRule(q.rule); err != nil {
		return nil, err
	}
	src := q.newSource()
	x := view.NewExt(src, q.viewOptions())
	q.track(src, x)
	return x, nil
}

// track makes r run with the query until its source is closed
func (q *Query) track(src *querySource, r runner) {
	q.runners = append(q.runners, r)
	src.release = func() {
		for i, other := range q.runners {
			if other == r {
				q.runners = append(q.runners[:i:i], q.runners[i+1:]...)
				return
			}
		}
	}
}

// RunQuery re-evaluates every open view made from this query. With no
// open views it evaluates once, which runs any implies fixpoint.
func (q *Query) RunQuery() error {
	if len(q.runners) == 0 {
		_, err := q.engine.evaluator.Evaluate(q.rule)
		return err
	}
	for _, r := range q.runners {
		if err := r.RunQuery(); err != nil {
			return err
		}
	}
	return nil
}

// ReadAll evaluates the query without materializing a view
func (q *Query) ReadAll() ([]datalog.Record, error) {
	rs, err := q.engine.evaluator.Evaluate(q.rule)
	if err != nil {
		return nil, err
	}
	return rs.Records(), nil
}

func (q *Query) viewOptions() view.Options {
	return view.Options{
		Name:         q.name,
		MaxReactions: q.engine.opts.MaxReactions,
		Handler:      q.engine.opts.Handler,
	}
}

func (q *Query) newSource() *querySource {
	src := &querySource{q: q, dirty: true}
	for _, t := range q.rule.Tables() {
		src.cursors = append(src.cursors, t.NewCursor())
	}
	return src
}

// querySource adapts a Query to view.Source. Table cursors tell it whether
// anything the rule reads or derives into has moved since the last
// successful evaluation.
type querySource struct {
	q       *Query
	cursors []*table.Cursor
	dirty   bool
	release func()
}

func (s *querySource) Fields() []string {
	return s.q.rule.FindFields()
}

func (s *querySource) Changed() bool {
	for _, c := range s.cursors {
		if !c.Drain().Empty() {
			s.dirty = true
		}
	}
	return s.dirty
}

func (s *querySource) Evaluate() ([]datalog.Record, error) {
	rs, err := s.q.engine.evaluator.Evaluate(s.q.rule)
	if err != nil {
		return nil, err
	}
	// Absorb facts the fixpoint itself derived
	for _, c := range s.cursors {
		c.Drain()
	}
	s.dirty = false
	return rs.Records(), nil
}

// Close detaches the cursors so tables stop logging changes for this
// source, and drops the view from its query
func (s *querySource) Close() error {
	for _, c := range s.cursors {
		c.Close()
	}
	s.cursors = nil
	if s.release != nil {
		s.release()
		s.release = nil
	}
	return nil
}
