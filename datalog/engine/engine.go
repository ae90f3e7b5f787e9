// Package engine is the public surface of the incremental Datalog engine:
// tables, queries, recursive implies rules and reactive views.
//
//	e, _ := engine.New(engine.Options{})
//	greetings, _ := e.IntoTable([]datalog.Record{
//		{"language": "en", "greeting": "Hello"},
//		{"language": "es", "greeting": "Hola"},
//	})
//	q, _ := e.Query(func(b *query.Builder) {
//		b.Match(greetings, query.Pattern{"language": query.Fixed("en"), "greeting": query.Var("greeting")})
//	})
//	v, _ := q.View()
//	v.ReadAllData() // [{greeting: "Hello"}]
//
// Evaluation is synchronous and pull-based: table mutations become
// visible to a view only when it is explicitly re-run.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/annotations"
	"github.com/wbrown/janus-incremental/datalog/executor"
	"github.com/wbrown/janus-incremental/datalog/query"
	"github.com/wbrown/janus-incremental/datalog/storage"
	"github.com/wbrown/janus-incremental/datalog/table"
)

// Options configures an Engine. The zero value selects the in-memory
// B-tree backend and default bounds.
type Options struct {
	// Backend selects the fact store for tables the engine creates
	Backend storage.Backend

	// MaxIterations bounds each fixpoint evaluation
	MaxIterations int

	// MaxReactions bounds the reactive loop of each ViewExt
	MaxReactions int

	// Handler receives annotation events from every component
	Handler annotations.Handler
}

// Engine owns the store provider and the evaluator shared by its tables,
// queries and views
type Engine struct {
	opts      Options
	provider  storage.Provider
	evaluator *executor.Evaluator
	collector *annotations.Collector

	tables []*table.Table
}

// New creates an engine
func New(opts Options) (*Engine, error) {
	provider, err := storage.NewProvider(opts.Backend)
	if err != nil {
		return nil, err
	}
	return &Engine{
		opts:     opts,
		provider: provider,
		evaluator: executor.New(executor.Options{
			MaxIterations: opts.MaxIterations,
			Handler:       opts.Handler,
		}),
		collector: annotations.NewCollector(opts.Handler),
	}, nil
}

// Close releases every table store and the provider
func (e *Engine) Close() error {
	var errs []error
	for _, t := range e.tables {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.tables = nil
	if err := e.provider.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Evaluator returns the engine's evaluator
func (e *Engine) Evaluator() *executor.Evaluator {
	return e.evaluator
}

func (e *Engine) tableOptions(opts []table.Option) ([]table.Option, error) {
	store, err := e.provider.NewStore(fmt.Sprintf("table-%d", len(e.tables)+1))
	if err != nil {
		return nil, fmt.Errorf("allocating table store: %w", err)
	}
	// Engine defaults first so caller options override them
	return append([]table.Option{table.WithStore(store), table.WithHandler(e.opts.Handler)}, opts...), nil
}

// NewTable creates an empty table with a fixed schema
func (e *Engine) NewTable(schema datalog.Schema, opts ...table.Option) (*table.Table, error) {
	all, err := e.tableOptions(opts)
	if err != nil {
		return nil, err
	}
	t, err := table.New(schema, all...)
	if err != nil {
		e.definitionFailed(err)
		return nil, err
	}
	e.tables = append(e.tables, t)
	return t, nil
}

// IntoTable creates a table from initial facts, inferring the schema from
// the first one
func (e *Engine) IntoTable(records []datalog.Record, opts ...table.Option) (*table.Table, error) {
	all, err := e.tableOptions(opts)
	if err != nil {
		return nil, err
	}
	t, err := table.FromRecords(records, all...)
	if err != nil {
		e.definitionFailed(err)
		return nil, err
	}
	e.tables = append(e.tables, t)
	return t, nil
}

// Query builds a query from a body function
func (e *Engine) Query(fn func(b *query.Builder)) (*Query, error) {
	rule, err := query.Build(fn)
	if err != nil {
		e.definitionFailed(err)
		return nil, err
	}
	return &Query{engine: e, rule: rule}, nil
}

func (e *Engine) definitionFailed(err error) {
	if e.collector.Enabled() {
		e.collector.AddTiming(annotations.ErrorDefinition, time.Now(), map[string]interface{}{
			"error": err,
		})
	}
}
