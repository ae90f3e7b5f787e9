// Package view materializes query results and tracks the net change each
// evaluation makes to them.
package view

import (
	"errors"
	"time"

	"github.com/google/btree"
	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/annotations"
	"github.com/wbrown/janus-incremental/datalog/executor"
)

// Source produces the full result set a view materializes
type Source interface {
	// Fields returns the result field names
	Fields() []string
	// Evaluate computes the current result set
	Evaluate() ([]datalog.Record, error)
	// Changed reports whether any input moved since the previous call
	Changed() bool
	// Close releases whatever the source holds to track changes
	Close() error
}

// ErrClosed is returned by RunQuery on a closed view
var ErrClosed = errors.New("view is closed")

// Options configures a View. The zero value is usable.
type Options struct {
	// Name identifies the view in annotations and rendering
	Name string
	// MaxReactions bounds the reactive re-evaluation loop of an Ext.
	// Zero selects DefaultMaxReactions.
	MaxReactions int
	// Handler receives view and reaction events
	Handler annotations.Handler
}

// DefaultMaxReactions bounds Ext re-evaluation rounds when Options leaves
// it zero
const DefaultMaxReactions = 1000

const snapshotDegree = 16

// recordItem orders snapshot entries by Record.Compare
type recordItem struct {
	rec datalog.Record
}

func (i recordItem) Less(than btree.Item) bool {
	return i.rec.Compare(than.(recordItem).rec) < 0
}

// View is a materialized, diff-tracked result set. Its snapshot always
// reflects exactly one completed evaluation.
type View struct {
	src       Source
	opts      Options
	collector *annotations.Collector

	snapshot  *btree.BTree
	recent    []Diff
	evaluated bool
	closed    bool
}

// New creates a view over src. It holds no results until RunQuery.
func New(src Source, opts Options) *View {
	return &View{
		src:       src,
		opts:      opts,
		collector: annotations.NewCollector(opts.Handler),
		snapshot:  btree.New(snapshotDegree),
	}
}

// Name returns the view name
func (v *View) Name() string {
	return v.opts.Name
}

// Fields returns the result field names
func (v *View) Fields() []string {
	return v.src.Fields()
}

// RunQuery re-evaluates the source and replaces the snapshot, recording
// the symmetric difference as the recent diff. If evaluation fails the
// snapshot and recent diff are left as they were.
func (v *View) RunQuery() error {
	_, err := v.run()
	return err
}

// run returns the diffs the evaluation produced (nil for none)
func (v *View) run() ([]Diff, error) {
	if v.closed {
		return nil, ErrClosed
	}
	start := time.Now()

	// Always consult the source so the first run consumes pending changes
	changed := v.src.Changed()
	if v.evaluated && !changed {
		v.recent = nil
		if v.collector.Enabled() {
			v.collector.AddTiming(annotations.ViewSkipped, start, map[string]interface{}{
				"view": v.opts.Name,
			})
		}
		return nil, nil
	}

	records, err := v.src.Evaluate()
	if err != nil {
		if v.collector.Enabled() {
			v.collector.AddTiming(annotations.ViewEvaluated, start, map[string]interface{}{
				"view":    v.opts.Name,
				"success": false,
				"error":   err,
			})
		}
		return nil, err
	}

	next := btree.New(snapshotDegree)
	for _, r := range records {
		next.ReplaceOrInsert(recordItem{rec: r})
	}

	diffs := diffSnapshots(v.snapshot, next)
	v.snapshot = next
	v.evaluated = true
	v.recent = diffs

	if v.collector.Enabled() {
		v.collector.AddTiming(annotations.ViewEvaluated, start, map[string]interface{}{
			"view":        v.opts.Name,
			"success":     true,
			"tuple.count": next.Len(),
		})
		if diffs != nil {
			added, removed := countKinds(diffs)
			v.collector.AddTiming(annotations.ViewDiff, start, map[string]interface{}{
				"view":    v.opts.Name,
				"added":   added,
				"removed": removed,
			})
		}
	}
	return diffs, nil
}

// Close releases the source. The last snapshot stays readable, but
// RunQuery fails with ErrClosed. Closing twice is a no-op.
func (v *View) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	v.recent = nil
	return v.src.Close()
}

// diffSnapshots returns Removed entries then Added entries, each in
// snapshot order, or nil if the snapshots hold the same records
func diffSnapshots(prev, next *btree.BTree) []Diff {
	var removed, added []Diff
	prev.Ascend(func(i btree.Item) bool {
		if !next.Has(i) {
			removed = append(removed, Diff{Datum: i.(recordItem).rec.Clone(), Kind: Removed})
		}
		return true
	})
	next.Ascend(func(i btree.Item) bool {
		if !prev.Has(i) {
			added = append(added, Diff{Datum: i.(recordItem).rec.Clone(), Kind: Added})
		}
		return true
	})
	if len(removed) == 0 && len(added) == 0 {
		return nil
	}
	return append(removed, added...)
}

func countKinds(diffs []Diff) (added, removed int) {
	for _, d := range diffs {
		switch d.Kind {
		case Added:
			added++
		case Removed:
			removed++
		}
	}
	return added, removed
}

// ReadAllData returns the full current result set in deterministic order
func (v *View) ReadAllData() []datalog.Record {
	out := make([]datalog.Record, 0, v.snapshot.Len())
	v.snapshot.Ascend(func(i btree.Item) bool {
		out = append(out, i.(recordItem).rec.Clone())
		return true
	})
	return out
}

// RecentData returns the diffs of the most recent evaluation, or nil if it
// changed nothing
func (v *View) RecentData() []Diff {
	if v.recent == nil {
		return nil
	}
	out := make([]Diff, len(v.recent))
	for i, d := range v.recent {
		out[i] = Diff{Datum: d.Datum.Clone(), Kind: d.Kind}
	}
	return out
}

// Len returns the number of results in the snapshot
func (v *View) Len() int {
	return v.snapshot.Len()
}

// Table renders the snapshot as a markdown table
func (v *View) Table() string {
	return executor.FormatRecords(v.src.Fields(), v.ReadAllData())
}
