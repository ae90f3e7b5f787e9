package executor

import (
	"fmt"
	"sync"
	"time"

	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/annotations"
	"github.com/wbrown/janus-incremental/datalog/query"
	"github.com/wbrown/janus-incremental/datalog/table"
)

// Evaluator executes rules against current table contents. It remembers
// every rule with heads it has been given, and checks each evaluation for
// stratification against that whole program.
type Evaluator struct {
	opts      Options
	collector *annotations.Collector

	mu      sync.Mutex
	program []*query.Rule
}

// New creates an evaluator
func New(opts Options) *Evaluator {
	return &Evaluator{opts: opts, collector: annotations.NewCollector(opts.Handler)}
}

// Evaluate runs a rule to completion and returns its result set. A rule
// with heads first derives into its head tables until a fixpoint is
// reached. Any failure is an *datalog.EvaluationError and no result is
// returned.
func (e *Evaluator) Evaluate(rule *query.Rule) (*ResultSet, error) {
	start := time.Now()
	rs, err := e.evaluate(rule)
	if err != nil {
		if e.collector.Enabled() {
			e.collector.AddTiming(annotations.ErrorEvaluation, start, map[string]interface{}{
				"rule":  rule.String(),
				"error": err,
			})
		}
		return nil, err
	}
	if e.collector.Enabled() {
		e.collector.AddTiming(annotations.RuleEvaluated, start, map[string]interface{}{
			"rule":        rule.String(),
			"atom.count":  len(rule.Body),
			"tuple.count": rs.Len(),
			"fields":      rs.Fields(),
		})
	}
	return rs, nil
}

// Register adds a rule with heads to the program. Rules without heads
// derive nothing and are ignored.
func (e *Evaluator) Register(rule *query.Rule) {
	if rule == nil || len(rule.Heads) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.program {
		if r == rule {
			return
		}
	}
	e.program = append(e.program, rule)
}

// CheckRule checks rule together with every registered rule. A negation
// cycle anywhere in the program fails every evaluation, since no order of
// evaluation gives the program a single meaning.
func (e *Evaluator) CheckRule(rule *query.Rule) error {
	e.mu.Lock()
	rules := make([]*query.Rule, 0, len(e.program)+1)
	rules = append(rules, rule)
	rules = append(rules, e.program...)
	e.mu.Unlock()
	return CheckStratification(rules...)
}

func (e *Evaluator) evaluate(rule *query.Rule) (*ResultSet, error) {
	if rule == nil || len(rule.Body) == 0 {
		return nil, datalog.Evaluationf(nil, "empty rule")
	}
	e.Register(rule)
	if err := e.CheckRule(rule); err != nil {
		return nil, err
	}
	if len(rule.Heads) > 0 {
		if err := e.fixpoint(rule); err != nil {
			return nil, err
		}
	}
	rel, err := e.evalBody(rule, -1, nil)
	if err != nil {
		return nil, err
	}
	return NewResultSet(rule.FindFields(), rel.Project(rule.Find)), nil
}

// snapshots reads each referenced table once per body evaluation
type snapshots map[*table.Table][]datalog.Fact

func (s snapshots) get(t *table.Table) ([]datalog.Fact, error) {
	if facts, ok := s[t]; ok {
		return facts, nil
	}
	facts, err := t.Snapshot()
	if err != nil {
		return nil, datalog.Evaluationf(err, "reading %s", t)
	}
	s[t] = facts
	return facts, nil
}

// evalBody evaluates atoms left to right from a single empty binding.
// When deltaAtom >= 0 that atom reads deltaFacts instead of its table.
func (e *Evaluator) evalBody(rule *query.Rule, deltaAtom int, deltaFacts []datalog.Fact) (*Relation, error) {
	snap := make(snapshots)
	rel := unitRelation()
	for i, atom := range rule.Body {
		start := time.Now()
		var facts []datalog.Fact
		if i == deltaAtom {
			facts = deltaFacts
		} else {
			var err error
			if facts, err = snap.get(atom.Table); err != nil {
				return nil, err
			}
		}

		input := rel.Size()
		if atom.Negated {
			rel = AntiJoin(rel, atom, facts)
		} else {
			rel = JoinAtom(rel, atom, facts)
		}

		if e.collector.Enabled() {
			name := annotations.AtomJoined
			if atom.Negated {
				name = annotations.AtomNegated
			}
			e.collector.AddTiming(name, start, map[string]interface{}{
				"atom":        atom.Table.String() + atom.Pattern.String(),
				"input.size":  input,
				"scanned":     len(facts),
				"result.size": rel.Size(),
			})
		}
	}
	return rel, nil
}

// fixpoint derives into the rule's head tables with semi-naive iteration:
// after the first full pass, each iteration only re-evaluates the body
// with one head-table atom restricted to the facts new in the previous
// iteration. It stops when an iteration derives nothing. Head tables only
// ever grow.
func (e *Evaluator) fixpoint(rule *query.Rule) error {
	start := time.Now()
	heads := rule.HeadTables()
	recursive := rule.Recursive()
	maxIter := e.opts.maxIterations()

	total := 0
	var delta map[*table.Table][]datalog.Fact
	for iter := 0; ; iter++ {
		if iter >= maxIter {
			return datalog.Evaluationf(datalog.ErrNoFixpoint, "%s: no fixpoint after %d iterations", rule, maxIter)
		}
		iterStart := time.Now()

		var rels []*Relation
		if iter == 0 {
			rel, err := e.evalBody(rule, -1, nil)
			if err != nil {
				return err
			}
			rels = append(rels, rel)
		} else {
			for k, atom := range rule.Body {
				if atom.Negated || !heads[atom.Table] || len(delta[atom.Table]) == 0 {
					continue
				}
				rel, err := e.evalBody(rule, k, delta[atom.Table])
				if err != nil {
					return err
				}
				rels = append(rels, rel)
			}
		}

		next, derived, err := derive(rule, rels)
		if err != nil {
			return err
		}
		total += derived

		if e.collector.Enabled() {
			e.collector.AddTiming(annotations.FixpointIteration, iterStart, map[string]interface{}{
				"rule":      rule.String(),
				"iteration": iter,
				"derived":   derived,
			})
		}

		if derived == 0 || !recursive {
			if e.collector.Enabled() {
				e.collector.AddTiming(annotations.FixpointConverged, start, map[string]interface{}{
					"rule":          rule.String(),
					"iterations":    iter + 1,
					"derived.total": total,
				})
			}
			return nil
		}
		delta = next
	}
}

// derive projects every binding through every head and asserts the
// results, returning the facts that were new per table
func derive(rule *query.Rule, rels []*Relation) (map[*table.Table][]datalog.Fact, int, error) {
	next := make(map[*table.Table][]datalog.Fact)
	derived := 0
	for _, rel := range rels {
		for _, t := range rel.Tuples() {
			lookup := rel.Lookup(t)
			for _, h := range rule.Heads {
				fact, err := h.Project(lookup)
				if err != nil {
					return nil, 0, datalog.Evaluationf(err, "deriving into %s", h.Table)
				}
				added, err := h.Table.AssertNew(fact)
				if err != nil {
					return nil, 0, datalog.Evaluationf(err, "deriving into %s", h.Table)
				}
				if added {
					next[h.Table] = append(next[h.Table], fact)
					derived++
				}
			}
		}
	}
	return next, derived, nil
}

// String describes the evaluator configuration
func (e *Evaluator) String() string {
	return fmt.Sprintf("Evaluator(maxIterations=%d)", e.opts.maxIterations())
}
