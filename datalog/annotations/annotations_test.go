package annotations

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	var forwarded []string
	c := NewRecordingCollector(func(e Event) { forwarded = append(forwarded, e.Name) })

	start := time.Now().Add(-time.Millisecond)
	c.AddTiming(ViewEvaluated, start, map[string]interface{}{"view": "v"})
	c.Add(Event{Name: ViewSkipped})

	assert.Equal(t, []string{ViewEvaluated, ViewSkipped}, forwarded)
	events := c.Events()
	require.Len(t, events, 2)
	assert.GreaterOrEqual(t, events[0].Latency, time.Millisecond)
	assert.Len(t, c.Named(ViewSkipped), 1)

	c.Reset()
	assert.Empty(t, c.Events())
}

func TestDisabledCollectors(t *testing.T) {
	var nilCollector *Collector
	assert.False(t, nilCollector.Enabled())
	assert.Nil(t, nilCollector.Events())
	assert.Nil(t, nilCollector.Handler())
	nilCollector.Add(Event{Name: "ignored"})
	nilCollector.Reset()

	c := NewCollector(nil)
	assert.False(t, c.Enabled())
	c.AddTiming(RuleEvaluated, time.Now(), nil)
	assert.Empty(t, c.Events())

	// Forwarding-only collectors do not retain
	seen := 0
	fwd := NewCollector(func(Event) { seen++ })
	fwd.Add(Event{Name: RuleEvaluated})
	assert.Equal(t, 1, seen)
	assert.Empty(t, fwd.Events())
}

func TestChain(t *testing.T) {
	assert.Nil(t, Chain())
	assert.Nil(t, Chain(nil, nil))

	var a, b int
	h := Chain(func(Event) { a++ }, nil, func(Event) { b++ })
	h(Event{})
	h(Event{})
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}

func TestOutputFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatter(&buf)

	tests := []struct {
		event Event
		want  []string
	}{
		{
			Event{Name: TableAsserted, Data: map[string]interface{}{"table": "People", "fact": `{firstName: "Jamie"}`}},
			[]string{"+ People", `{firstName: "Jamie"}`},
		},
		{
			Event{Name: TableRetracted, Data: map[string]interface{}{"table": "People", "fact": "{}"}},
			[]string{"- People"},
		},
		{
			Event{Name: AtomNegated, Data: map[string]interface{}{
				"atom": "Banned{name: ?first}", "input.size": 2, "scanned": 1, "result.size": 1,
			}},
			[]string{"not Banned{name: ?first}", "2 bindings", "1 facts", "→ 1 bindings"},
		},
		{
			Event{Name: RuleEvaluated, Data: map[string]interface{}{
				"rule": "[?x] <- Nodes{id: ?x}", "atom.count": 1, "tuple.count": 3, "fields": []string{"x"},
			}},
			[]string{"[?x] <- Nodes{id: ?x}", "with 1 atoms", "Result([x], 3 Tuples)"},
		},
		{
			Event{Name: FixpointIteration, Data: map[string]interface{}{"iteration": 2, "derived": 5}},
			[]string{"iteration 2", "5 facts"},
		},
		{
			Event{Name: FixpointConverged, Data: map[string]interface{}{"iterations": 4, "derived.total": 9}},
			[]string{"after 4 iterations", "9 facts"},
		},
		{
			Event{Name: ViewEvaluated, Data: map[string]interface{}{"view": "bacon", "success": true, "tuple.count": 7}},
			[]string{"View bacon evaluated to 7 tuples"},
		},
		{
			Event{Name: ViewEvaluated, Data: map[string]interface{}{"view": "bacon", "success": false, "error": errors.New("boom")}},
			[]string{"View bacon failed: boom"},
		},
		{
			Event{Name: ViewSkipped, Data: map[string]interface{}{"view": "bacon"}},
			[]string{"bacon inputs unchanged"},
		},
		{
			Event{Name: ViewDiff, Data: map[string]interface{}{"view": "bacon", "added": 3, "removed": 1}},
			[]string{"+3", "-1"},
		},
		{
			Event{Name: ReactionEffects, Data: map[string]interface{}{"view": "bacon", "round": 2, "effect.count": 4, "diff.count": 4}},
			[]string{"round 2 on bacon", "4 effects", "4 diffs"},
		},
		{
			Event{Name: ErrorDefinition, Data: map[string]interface{}{"error": errors.New("bad query")}},
			[]string{"bad query"},
		},
		{
			Event{Name: "custom/event", Data: map[string]interface{}{"k": 1}},
			[]string{"custom/event"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.event.Name, func(t *testing.T) {
			out := f.Format(tt.event)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}

	f.Handle(Event{Name: ViewSkipped, Latency: 1500 * time.Microsecond, Data: map[string]interface{}{"view": "v"}})
	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "[1.5ms]"), line)
	assert.True(t, strings.HasSuffix(line, "\n"))
	assert.NotContains(t, line, "\x1b[", "no color when not writing to a terminal")
}

func TestFormatLatency(t *testing.T) {
	f := &OutputFormatter{}
	assert.Equal(t, "[250µs]", f.formatLatency(250*time.Microsecond))
	assert.Equal(t, "[12.3ms]", f.formatLatency(12300*time.Microsecond))
}

func TestRelationRenderer(t *testing.T) {
	r := NewRelationRenderer(false)
	assert.Equal(t, "Relation([a b], 2 Tuples)", r.RenderRelation("", []string{"a", "b"}, 2))
	assert.Equal(t, "Edges{from: ?x}", r.RenderAtom("Edges{from: ?x}", false))
	assert.Equal(t, "not Edges{from: ?x}", r.RenderAtom("Edges{from: ?x}", true))
}
