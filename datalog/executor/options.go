package executor

import "github.com/wbrown/janus-incremental/datalog/annotations"

// DefaultMaxIterations bounds fixpoint loops when Options leaves it zero
const DefaultMaxIterations = 10000

// Options configures an Evaluator. The zero value is usable.
type Options struct {
	// MaxIterations bounds semi-naive fixpoint iterations per evaluation.
	// Zero selects DefaultMaxIterations.
	MaxIterations int

	// Handler receives rule, atom and fixpoint events
	Handler annotations.Handler
}

func (o Options) maxIterations() int {
	if o.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return o.MaxIterations
}
