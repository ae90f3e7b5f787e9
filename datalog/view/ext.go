package view

import (
	"time"

	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/annotations"
)

// Ext is a View with a reactive pipeline: per-diff effects and
// per-change continuations.
//
// Callbacks run synchronously inside RunQuery. A RunQuery issued on the
// same Ext from inside a callback does not recurse; it marks a rerun as
// pending and the outer RunQuery loops until no rerun is pending.
type Ext struct {
	*View

	effects  []func(Diff)
	onChange []func()

	running bool
	pending bool
}

// NewExt creates a reactive view over src
func NewExt(src Source, opts Options) *Ext {
	return &Ext{View: New(src, opts)}
}

// MapEffect registers fn to run once per diff entry of every evaluation
// that changes the result set. fn receives its own copy of the entry.
func (x *Ext) MapEffect(fn func(Diff)) *Ext {
	if fn != nil {
		x.effects = append(x.effects, fn)
	}
	return x
}

// OnChange registers fn to run once per evaluation that changed the
// result set, after every effect for that evaluation has run
func (x *Ext) OnChange(fn func()) *Ext {
	if fn != nil {
		x.onChange = append(x.onChange, fn)
	}
	return x
}

// RunQuery evaluates and then runs the pipeline for the resulting diff,
// repeating while callbacks request another run
func (x *Ext) RunQuery() error {
	if x.running {
		x.pending = true
		return nil
	}
	x.running = true
	defer func() { x.running = false }()

	limit := x.opts.MaxReactions
	if limit <= 0 {
		limit = DefaultMaxReactions
	}

	for round := 1; ; round++ {
		x.pending = false
		diffs, err := x.View.run()
		if err != nil {
			return err
		}
		if diffs != nil {
			x.react(round, diffs)
		}
		if !x.pending {
			return nil
		}
		if round >= limit {
			x.pending = false
			return datalog.Evaluationf(datalog.ErrReactionLimit, "view %q still changing after %d rounds", x.opts.Name, limit)
		}
	}
}

func (x *Ext) react(round int, diffs []Diff) {
	if len(x.effects) == 0 && len(x.onChange) == 0 {
		return
	}
	start := time.Now()
	for _, d := range diffs {
		for _, fn := range x.effects {
			fn(Diff{Datum: d.Datum.Clone(), Kind: d.Kind})
		}
	}
	for _, fn := range x.onChange {
		fn()
	}
	if x.collector.Enabled() {
		x.collector.AddTiming(annotations.ReactionEffects, start, map[string]interface{}{
			"view":         x.opts.Name,
			"round":        round,
			"diff.count":   len(diffs),
			"effect.count": len(diffs) * len(x.effects),
		})
	}
}
