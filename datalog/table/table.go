// Package table implements the schema-typed fact set that queries read
// and callers mutate.
package table

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/annotations"
	"github.com/wbrown/janus-incremental/datalog/storage"
)

// Table is a named, schema-typed set of facts. Assert is idempotent and
// retracting an absent fact is a no-op. Every effective mutation is logged
// for the cursors that views use to detect pending changes.
type Table struct {
	name      string
	schema    datalog.Schema
	store     storage.Store
	collector *annotations.Collector

	mu      sync.RWMutex
	version uint64
	log     changeLog
}

// New creates an empty table with a fixed schema
func New(schema datalog.Schema, opts ...Option) (*Table, error) {
	if err := schema.Check(); err != nil {
		return nil, err
	}
	cfg := options{}
	for _, opt := range opts {
		opt(&cfg)
	}

	own := make(datalog.Schema, len(schema))
	for f, t := range schema {
		own[f] = t
	}

	store := cfg.store
	if store == nil {
		store = storage.NewMemoryStore()
	}

	return &Table{
		name:      cfg.name,
		schema:    own,
		store:     store,
		collector: annotations.NewCollector(cfg.handler),
	}, nil
}

// FromRecords creates a table whose schema is inferred from the first
// record, then asserts every record into it.
func FromRecords(records []datalog.Record, opts ...Option) (*Table, error) {
	if len(records) == 0 {
		return nil, datalog.Definitionf("cannot infer a schema from zero records")
	}
	schema, err := datalog.InferSchema(records[0])
	if err != nil {
		return nil, err
	}
	t, err := New(schema, opts...)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := t.Assert(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Name returns the table name, or "" if none was given
func (t *Table) Name() string {
	return t.name
}

// Schema returns a copy of the table schema
func (t *Table) Schema() datalog.Schema {
	out := make(datalog.Schema, len(t.schema))
	for f, ty := range t.schema {
		out[f] = ty
	}
	return out
}

// FieldType returns the declared type of a field
func (t *Table) FieldType(field string) (datalog.ValueType, bool) {
	ty, ok := t.schema[field]
	return ty, ok
}

// Declared reports whether the table was built by New or FromRecords.
// A zero Table is not declared and cannot be queried.
func (t *Table) Declared() bool {
	return t != nil && t.schema != nil && t.store != nil
}

// String returns the name, or the schema for anonymous tables
func (t *Table) String() string {
	if t == nil {
		return "<nil table>"
	}
	if t.name != "" {
		return t.name
	}
	return "Table" + t.schema.String()
}

// Assert validates fact against the schema and adds it if absent
func (t *Table) Assert(fact datalog.Fact) error {
	_, err := t.assert(fact)
	return err
}

// AssertNew is Assert that also reports whether the fact was new
func (t *Table) AssertNew(fact datalog.Fact) (bool, error) {
	return t.assert(fact)
}

func (t *Table) assert(fact datalog.Fact) (bool, error) {
	if !t.Declared() {
		return false, datalog.Definitionf("assert into undeclared table")
	}
	norm, err := t.schema.Validate(t.name, fact)
	if err != nil {
		return false, err
	}
	start := time.Now()
	key := datalog.EncodeRecord(norm)

	t.mu.Lock()
	added, err := t.store.Put(key, norm)
	if err == nil && added {
		t.version++
		t.log.append(change{version: t.version, key: string(key), fact: norm, added: true})
	}
	t.mu.Unlock()

	if err != nil {
		return false, fmt.Errorf("assert into %s: %w", t, err)
	}
	if added && t.collector.Enabled() {
		t.collector.AddTiming(annotations.TableAsserted, start, map[string]interface{}{
			"table": t.String(),
			"fact":  norm.String(),
		})
	}
	return added, nil
}

// Retract validates fact against the schema and removes it if present
func (t *Table) Retract(fact datalog.Fact) error {
	if !t.Declared() {
		return datalog.Definitionf("retract from undeclared table")
	}
	norm, err := t.schema.Validate(t.name, fact)
	if err != nil {
		return err
	}
	start := time.Now()
	key := datalog.EncodeRecord(norm)

	t.mu.Lock()
	removed, err := t.store.Delete(key)
	if err == nil && removed {
		t.version++
		t.log.append(change{version: t.version, key: string(key), fact: norm, added: false})
	}
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("retract from %s: %w", t, err)
	}
	if removed && t.collector.Enabled() {
		t.collector.AddTiming(annotations.TableRetracted, start, map[string]interface{}{
			"table": t.String(),
			"fact":  norm.String(),
		})
	}
	return nil
}

// Contains reports whether an equal fact is present. Facts that do not
// fit the schema are never present.
func (t *Table) Contains(fact datalog.Fact) bool {
	if !t.Declared() {
		return false
	}
	norm, err := t.schema.Validate(t.name, fact)
	if err != nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	ok, err := t.store.Has(datalog.EncodeRecord(norm))
	return err == nil && ok
}

// Len returns the number of facts
func (t *Table) Len() int {
	if !t.Declared() {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.store.Len()
}

// Version increments on every effective mutation
func (t *Table) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Snapshot returns a copy of every fact in store order. The read holds
// the table lock for its duration, so it observes one consistent state.
func (t *Table) Snapshot() ([]datalog.Fact, error) {
	if !t.Declared() {
		return nil, datalog.Definitionf("read from undeclared table")
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	facts := make([]datalog.Fact, 0, t.store.Len())
	err := t.store.Scan(func(f datalog.Fact) bool {
		facts = append(facts, f.Clone())
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", t, err)
	}
	return facts, nil
}

// Records returns every fact sorted by Record.Compare
func (t *Table) Records() []datalog.Record {
	facts, err := t.Snapshot()
	if err != nil {
		return nil
	}
	sort.Slice(facts, func(i, j int) bool {
		return facts[i].Compare(facts[j]) < 0
	})
	return facts
}

// Close detaches every open cursor and releases the underlying store
func (t *Table) Close() error {
	if !t.Declared() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log.cursors = nil
	t.log.entries = nil
	return t.store.Close()
}
