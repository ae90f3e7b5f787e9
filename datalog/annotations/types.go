// Package annotations provides a low-overhead event system for tracing
// table mutation, rule evaluation, fixpoint progress and view diffs.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Table mutation
	TableAsserted  = "table/asserted"
	TableRetracted = "table/retracted"

	// Rule evaluation
	RuleEvaluated = "rule/evaluated"
	AtomJoined    = "atom/joined"
	AtomNegated   = "atom/negated"

	// Recursive derivation
	FixpointIteration = "fixpoint/iteration"
	FixpointConverged = "fixpoint/converged"

	// View lifecycle
	ViewEvaluated = "view/evaluated"
	ViewSkipped   = "view/skipped"
	ViewDiff      = "view/diff"

	// Reactive pipeline
	ReactionEffects = "reaction/effects"

	// Errors
	ErrorDefinition = "error/definition"
	ErrorEvaluation = "error/evaluation"
)

// Event represents a single annotation event.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events and forwards them to a handler.
// A nil *Collector and a collector without a handler are both no-ops.
type Collector struct {
	handler Handler
	keep    bool

	mu     sync.Mutex
	events []Event
}

// NewCollector creates a collector that forwards to handler and does not
// retain events.
func NewCollector(handler Handler) *Collector {
	return &Collector{handler: handler}
}

// NewRecordingCollector creates a collector that retains every event in
// addition to forwarding it.
func NewRecordingCollector(handler Handler) *Collector {
	return &Collector{handler: handler, keep: true}
}

// Enabled reports whether events will be observed by anyone. Callers use it
// to skip building event data.
func (c *Collector) Enabled() bool {
	return c != nil && (c.handler != nil || c.keep)
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler {
	if c == nil {
		return nil
	}
	return c.handler
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	if c.keep {
		c.mu.Lock()
		c.events = append(c.events, event)
		c.mu.Unlock()
	}

	// Call handler outside the lock to avoid deadlocks
	if c.handler != nil {
		c.handler(event)
	}
}

// AddTiming records an event that started at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns all retained events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Return a copy to avoid race conditions
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Named returns the retained events with the given name.
func (c *Collector) Named(name string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears retained events.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}

// Chain returns a handler that forwards each event to every non-nil handler.
func Chain(handlers ...Handler) Handler {
	var live []Handler
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(event Event) {
		for _, h := range live {
			h(event)
		}
	}
}
