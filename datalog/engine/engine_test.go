package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/annotations"
	"github.com/wbrown/janus-incremental/datalog/query"
	"github.com/wbrown/janus-incremental/datalog/storage"
	"github.com/wbrown/janus-incremental/datalog/table"
	"github.com/wbrown/janus-incremental/datalog/view"
)

func newEngine(t *testing.T, opts Options) *Engine {
	e, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Close()) })
	return e
}

func intoTable(t *testing.T, e *Engine, name string, records ...datalog.Record) *table.Table {
	tbl, err := e.IntoTable(records, table.WithName(name))
	require.NoError(t, err)
	return tbl
}

func TestHelloWorld(t *testing.T) {
	e := newEngine(t, Options{})
	greetings := intoTable(t, e, "Greetings",
		datalog.Record{"language": "en", "greeting": "Hello"},
		datalog.Record{"language": "es", "greeting": "Hola"},
		datalog.Record{"language": "zh", "greeting": "你好"},
	)

	q, err := e.Query(func(b *query.Builder) {
		b.Match(greetings, query.Pattern{"language": query.Fixed("en"), "greeting": query.Var("greeting")})
	})
	require.NoError(t, err)

	v, err := q.View()
	require.NoError(t, err)
	assert.Equal(t, []datalog.Record{{"greeting": "Hello"}}, v.ReadAllData())
	assert.Equal(t, []view.Diff{{Datum: datalog.Record{"greeting": "Hello"}, Kind: view.Added}}, v.RecentData())

	records, err := q.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, v.ReadAllData(), records)
}

func TestJoinAcrossTables(t *testing.T) {
	e := newEngine(t, Options{})
	greetings := intoTable(t, e, "Greetings",
		datalog.Record{"language": "en", "greeting": "Hello"},
		datalog.Record{"language": "es", "greeting": "Hola"},
	)
	nouns := intoTable(t, e, "Nouns",
		datalog.Record{"language": "en", "noun": "world"},
		datalog.Record{"language": "es", "noun": "todos"},
	)

	q, err := e.Query(func(b *query.Builder) {
		b.Table(greetings).Match(query.Pattern{"language": query.Fixed("en"), "greeting": query.Var("greeting")})
		b.Table(nouns).Match(query.Pattern{"language": query.Fixed("en"), "noun": query.Var("noun")})
	})
	require.NoError(t, err)

	v, err := q.View()
	require.NoError(t, err)
	assert.Equal(t, []datalog.Record{{"greeting": "Hello", "noun": "world"}}, v.ReadAllData())

	// Joining on a shared variable instead of two fixed fields
	q, err = e.Query(func(b *query.Builder) {
		b.Match(greetings, query.Pattern{"language": query.Var("lang"), "greeting": query.Var("greeting")})
		b.Match(nouns, query.Pattern{"language": query.Var("lang"), "noun": query.Var("noun")})
	})
	require.NoError(t, err)
	v, err = q.View()
	require.NoError(t, err)
	assert.Equal(t, []datalog.Record{
		{"greeting": "Hello", "lang": "en", "noun": "world"},
		{"greeting": "Hola", "lang": "es", "noun": "todos"},
	}, v.ReadAllData())
}

func TestAssertIdempotence(t *testing.T) {
	e := newEngine(t, Options{})
	people, err := e.NewTable(datalog.Schema{"firstName": datalog.TypeString, "lastName": datalog.TypeString})
	require.NoError(t, err)

	f := datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}
	require.NoError(t, people.Assert(f))
	once := people.Records()
	require.NoError(t, people.Assert(f))
	assert.Equal(t, once, people.Records())
}

func TestAssertRetractSymmetry(t *testing.T) {
	e := newEngine(t, Options{})
	people, err := e.NewTable(datalog.Schema{"firstName": datalog.TypeString, "lastName": datalog.TypeString}, table.WithName("People"))
	require.NoError(t, err)

	q, err := e.Query(func(b *query.Builder) {
		b.Match(people, query.Pattern{"firstName": query.Var("firstName"), "lastName": query.Var("lastName")})
	})
	require.NoError(t, err)
	v, err := q.View()
	require.NoError(t, err)
	assert.Nil(t, v.RecentData())

	f := datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}
	require.NoError(t, people.Assert(f))
	require.NoError(t, q.RunQuery())
	added := v.RecentData()
	require.Len(t, added, 1)
	assert.Equal(t, view.Added, added[0].Kind)

	require.NoError(t, people.Retract(f))
	require.NoError(t, q.RunQuery())
	removed := v.RecentData()
	require.Len(t, removed, 1)
	assert.Equal(t, view.Removed, removed[0].Kind)
	assert.Equal(t, added[0].Datum, removed[0].Datum)
	assert.Empty(t, v.ReadAllData())
}

func TestNegationAndUnrelatedChanges(t *testing.T) {
	e := newEngine(t, Options{})
	people := intoTable(t, e, "People",
		datalog.Record{"firstName": "Jamie", "lastName": "Brandon"},
		datalog.Record{"firstName": "Marco", "lastName": "Munizaga"},
	)

	q, err := e.Query(func(b *query.Builder) {
		b.Match(people, query.Pattern{"firstName": query.Var("firstName"), "lastName": query.Fixed("Munizaga")})
	})
	require.NoError(t, err)
	v, err := q.View()
	require.NoError(t, err)
	assert.Equal(t, []datalog.Record{{"firstName": "Marco"}}, v.ReadAllData())

	require.NoError(t, people.Retract(datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}))
	require.NoError(t, q.RunQuery())
	assert.Nil(t, v.RecentData(), "change outside the result set is not a diff")
	assert.Equal(t, []datalog.Record{{"firstName": "Marco"}}, v.ReadAllData())

	// A net-zero mutation does not even re-evaluate
	c := annotations.NewRecordingCollector(nil)
	e2 := newEngine(t, Options{Handler: c.Add})
	people2 := intoTable(t, e2, "People", datalog.Record{"firstName": "Marco", "lastName": "Munizaga"})
	q2, err := e2.Query(func(b *query.Builder) {
		b.Match(people2, query.Pattern{"firstName": query.Var("firstName")})
	})
	require.NoError(t, err)
	_, err = q2.View()
	require.NoError(t, err)

	ana := datalog.Fact{"firstName": "Ana", "lastName": "Munizaga"}
	require.NoError(t, people2.Assert(ana))
	require.NoError(t, people2.Retract(ana))
	require.NoError(t, q2.RunQuery())
	assert.Len(t, c.Named(annotations.ViewSkipped), 1)
}

func TestNegatedAtom(t *testing.T) {
	e := newEngine(t, Options{})
	people := intoTable(t, e, "People",
		datalog.Record{"firstName": "Jamie", "lastName": "Brandon"},
		datalog.Record{"firstName": "Marco", "lastName": "Munizaga"},
	)
	away, err := e.NewTable(datalog.Schema{"name": datalog.TypeString}, table.WithName("Away"))
	require.NoError(t, err)

	q, err := e.Query(func(b *query.Builder) {
		b.Find("firstName")
		b.Match(people, query.Pattern{"firstName": query.Var("firstName")})
		b.Not(away, query.Pattern{"name": query.Var("firstName")})
	})
	require.NoError(t, err)
	v, err := q.View()
	require.NoError(t, err)
	assert.Equal(t, []datalog.Record{{"firstName": "Jamie"}, {"firstName": "Marco"}}, v.ReadAllData())

	require.NoError(t, away.Assert(datalog.Fact{"name": "Jamie"}))
	require.NoError(t, q.RunQuery())
	assert.Equal(t, []view.Diff{{Datum: datalog.Record{"firstName": "Jamie"}, Kind: view.Removed}}, v.RecentData())
}

func closure(t *testing.T, e *Engine) (nodes, edges *table.Table, q *Query) {
	var err error
	nodes, err = e.NewTable(datalog.Schema{"id": datalog.TypeNumber}, table.WithName("Nodes"))
	require.NoError(t, err)
	require.NoError(t, nodes.Assert(datalog.Fact{"id": 1}))

	edges, err = e.NewTable(datalog.Schema{"from": datalog.TypeNumber, "to": datalog.TypeNumber}, table.WithName("Edges"))
	require.NoError(t, err)
	for i := 1; i < 5; i++ {
		require.NoError(t, edges.Assert(datalog.Fact{"from": i, "to": i + 1}))
	}

	base, err := e.Query(func(b *query.Builder) {
		b.Match(nodes, query.Pattern{"id": query.Var("x")})
		b.Match(edges, query.Pattern{"from": query.Var("x"), "to": query.Var("y")})
	})
	require.NoError(t, err)
	q, err = base.Implies(func(hb *query.HeadBuilder) {
		hb.Into(nodes, query.Pattern{"id": query.Var("y")})
	})
	require.NoError(t, err)
	assert.Empty(t, base.Rule().Heads, "Implies leaves the receiver unchanged")
	return nodes, edges, q
}

func nodeIDs(records []datalog.Record) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r["id"].(int64)
	}
	return out
}

func TestRecursiveClosure(t *testing.T) {
	for _, backend := range []storage.Backend{storage.MemoryBackend, storage.BadgerBackend} {
		t.Run(backend.String(), func(t *testing.T) {
			e := newEngine(t, Options{Backend: backend})
			nodes, _, q := closure(t, e)

			// No views: RunQuery evaluates once, deriving to the fixpoint
			require.NoError(t, q.RunQuery())
			assert.Equal(t, []int64{1, 2, 3, 4, 5}, nodeIDs(nodes.Records()))

			require.NoError(t, q.RunQuery())
			assert.Equal(t, []int64{1, 2, 3, 4, 5}, nodeIDs(nodes.Records()))
		})
	}
}

func TestRecursiveViewIsIncremental(t *testing.T) {
	e := newEngine(t, Options{})
	nodes, edges, q := closure(t, e)

	v, err := q.Named("reachable").View()
	require.NoError(t, err)
	assert.Equal(t, "reachable", v.Name())
	assert.Len(t, v.ReadAllData(), 4)
	assert.Len(t, v.RecentData(), 4)

	// Facts the fixpoint derived itself are not pending changes
	require.NoError(t, v.RunQuery())
	assert.Nil(t, v.RecentData())

	require.NoError(t, edges.Assert(datalog.Fact{"from": 5, "to": 6}))
	require.NoError(t, v.RunQuery())
	assert.Equal(t, []view.Diff{
		{Datum: datalog.Record{"x": int64(5), "y": int64(6)}, Kind: view.Added},
	}, v.RecentData())
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, nodeIDs(nodes.Records()))
}

func TestBaconNumbers(t *testing.T) {
	e := newEngine(t, Options{MaxReactions: 50})

	credits := intoTable(t, e, "Credits",
		datalog.Record{"actor": "Kevin Bacon", "movie": "Wild Things"},
		datalog.Record{"actor": "Robert Wagner", "movie": "Wild Things"},
		datalog.Record{"actor": "Kevin Bacon", "movie": "JFK"},
		datalog.Record{"actor": "Edward Asner", "movie": "JFK"},
		datalog.Record{"actor": "Elvis Presley", "movie": "Change of Habit"},
		datalog.Record{"actor": "Edward Asner", "movie": "Change of Habit"},
		datalog.Record{"actor": "Mary Tyler Moore", "movie": "Change of Habit"},
	)
	bacon := intoTable(t, e, "BaconNumbers",
		datalog.Record{"actor": "Kevin Bacon", "number": 0},
		datalog.Record{"actor": "Robert Wagner", "number": datalog.Infinity},
		datalog.Record{"actor": "Edward Asner", "number": datalog.Infinity},
		datalog.Record{"actor": "Elvis Presley", "number": datalog.Infinity},
		datalog.Record{"actor": "Mary Tyler Moore", "number": datalog.Infinity},
	)

	q, err := e.Query(func(b *query.Builder) {
		b.Match(bacon, query.Pattern{"actor": query.Var("actor"), "number": query.Var("number")})
		b.Match(credits, query.Pattern{"actor": query.Var("actor"), "movie": query.Var("movie")})
		b.Match(credits, query.Pattern{"actor": query.Var("coActor"), "movie": query.Var("movie")})
		b.Match(bacon, query.Pattern{"actor": query.Var("coActor"), "number": query.Var("coNumber")})
	})
	require.NoError(t, err)

	x, err := q.Named("relax").ViewExt()
	require.NoError(t, err)
	assert.Equal(t, "relax", x.Name())
	assert.Nil(t, x.RecentData(), "not evaluated until the first RunQuery")

	rounds := 0
	x.MapEffect(func(d view.Diff) {
		if d.Kind != view.Added {
			return
		}
		number := d.Datum["number"].(int64)
		coNumber := d.Datum["coNumber"].(int64)
		next, err := datalog.SaturatingAdd(number, 1)
		require.NoError(t, err)
		if next.(int64) < coNumber {
			coActor := d.Datum["coActor"]
			require.NoError(t, bacon.Retract(datalog.Fact{"actor": coActor, "number": coNumber}))
			require.NoError(t, bacon.Assert(datalog.Fact{"actor": coActor, "number": next}))
		}
	}).OnChange(func() {
		rounds++
		require.NoError(t, x.RunQuery())
	})

	require.NoError(t, q.RunQuery())
	assert.Equal(t, []datalog.Record{
		{"actor": "Edward Asner", "number": int64(1)},
		{"actor": "Elvis Presley", "number": int64(2)},
		{"actor": "Kevin Bacon", "number": int64(0)},
		{"actor": "Mary Tyler Moore", "number": int64(2)},
		{"actor": "Robert Wagner", "number": int64(1)},
	}, bacon.Records())
	assert.Equal(t, 3, rounds)

	// Fixpoint reached: re-evaluation is idempotent
	require.NoError(t, x.RunQuery())
	assert.Nil(t, x.RecentData())
	assert.Equal(t, 3, rounds)
}

func TestDefinitionErrors(t *testing.T) {
	c := annotations.NewRecordingCollector(nil)
	e := newEngine(t, Options{Handler: c.Add})
	nodes, err := e.NewTable(datalog.Schema{"id": datalog.TypeNumber})
	require.NoError(t, err)

	_, err = e.Query(func(b *query.Builder) {
		b.Match(nodes, query.Pattern{"label": query.Var("l")})
	})
	assert.True(t, errors.Is(err, datalog.ErrDefinition))

	q, err := e.Query(func(b *query.Builder) {
		b.Match(nodes, query.Pattern{"id": query.Var("x")})
	})
	require.NoError(t, err)
	_, err = q.Implies(func(hb *query.HeadBuilder) {
		hb.Into(nodes, query.Pattern{"id": query.Var("unbound")})
	})
	assert.True(t, errors.Is(err, datalog.ErrDefinition))

	_, err = e.NewTable(datalog.Schema{})
	assert.True(t, errors.Is(err, datalog.ErrDefinition))

	_, err = e.IntoTable(nil)
	assert.True(t, errors.Is(err, datalog.ErrDefinition))

	assert.Len(t, c.Named(annotations.ErrorDefinition), 4)
}

func TestUnstratifiedNegationFailsAtEvaluation(t *testing.T) {
	e := newEngine(t, Options{})
	nodes := intoTable(t, e, "Nodes", datalog.Record{"id": 1})
	blocked, err := e.NewTable(datalog.Schema{"id": datalog.TypeNumber}, table.WithName("Blocked"))
	require.NoError(t, err)

	base, err := e.Query(func(b *query.Builder) {
		b.Match(nodes, query.Pattern{"id": query.Var("x")})
		b.Not(blocked, query.Pattern{"id": query.Var("x")})
	})
	require.NoError(t, err)
	q, err := base.Implies(func(hb *query.HeadBuilder) {
		hb.Into(blocked, query.Pattern{"id": query.Var("x")})
	})
	require.NoError(t, err, "building succeeds; the cycle is an evaluation error")

	_, err = q.View()
	assert.True(t, errors.Is(err, datalog.ErrNotStratifiable))
	_, err = q.ViewExt()
	assert.True(t, errors.Is(err, datalog.ErrNotStratifiable))
	err = q.RunQuery()
	assert.True(t, errors.Is(err, datalog.ErrEvaluation))
	assert.Equal(t, 0, blocked.Len())
}

func TestMaxIterations(t *testing.T) {
	e := newEngine(t, Options{MaxIterations: 2})
	_, _, q := closure(t, e)

	_, err := q.View()
	assert.True(t, errors.Is(err, datalog.ErrNoFixpoint))
}

func TestFailedViewReleasesCursors(t *testing.T) {
	e := newEngine(t, Options{MaxIterations: 2})
	nodes, edges, q := closure(t, e)

	_, err := q.View()
	require.Error(t, err)
	assert.Equal(t, 0, nodes.OpenCursors())
	assert.Equal(t, 0, edges.OpenCursors())
}

func TestViewTableRendering(t *testing.T) {
	e := newEngine(t, Options{})
	bacon := intoTable(t, e, "BaconNumbers",
		datalog.Record{"actor": "Kevin Bacon", "number": 0},
		datalog.Record{"actor": "Elvis Presley", "number": datalog.Infinity},
	)
	q, err := e.Query(func(b *query.Builder) {
		b.Match(bacon, query.Pattern{"actor": query.Var("actor"), "number": query.Var("number")})
	})
	require.NoError(t, err)
	v, err := q.View()
	require.NoError(t, err)

	out := v.Table()
	assert.Contains(t, out, "Kevin Bacon")
	assert.Contains(t, out, "∞")
	assert.Contains(t, out, "_2 rows_")
}

func TestNamedViewsRunWithTheirQuery(t *testing.T) {
	e := newEngine(t, Options{})
	people := intoTable(t, e, "People",
		datalog.Record{"firstName": "Jamie", "lastName": "Brandon"},
		datalog.Record{"firstName": "Marco", "lastName": "Munizaga"},
	)
	away, err := e.NewTable(datalog.Schema{"firstName": datalog.TypeString}, table.WithName("Away"))
	require.NoError(t, err)

	q, err := e.Query(func(b *query.Builder) {
		b.Match(people, query.Pattern{"firstName": query.Var("firstName")})
		b.Not(away, query.Pattern{"firstName": query.Var("firstName")})
	})
	require.NoError(t, err)
	assert.Same(t, q, q.Named("present"))
	v, err := q.View()
	require.NoError(t, err)
	assert.Equal(t, "present", v.Name())

	fired := 0
	x, err := q.Named("present-ext").ViewExt()
	require.NoError(t, err)
	x.MapEffect(func(view.Diff) { fired++ })

	require.NoError(t, away.Assert(datalog.Fact{"firstName": "Jamie"}))
	require.NoError(t, q.RunQuery())

	removed := []view.Diff{{Datum: datalog.Record{"firstName": "Jamie"}, Kind: view.Removed}}
	assert.Equal(t, removed, v.RecentData())
	assert.Equal(t, []datalog.Record{{"firstName": "Marco"}}, x.ReadAllData())
	assert.Equal(t, 1, fired, "the ext's first run sees only Marco")
}

func TestClosedViewsStopTrackingChanges(t *testing.T) {
	e := newEngine(t, Options{})
	nodes := intoTable(t, e, "Nodes", datalog.Record{"id": 1})
	q, err := e.Query(func(b *query.Builder) {
		b.Match(nodes, query.Pattern{"id": query.Var("id")})
	})
	require.NoError(t, err)

	v, err := q.View()
	require.NoError(t, err)
	x, err := q.ViewExt()
	require.NoError(t, err)
	assert.Equal(t, 2, nodes.OpenCursors())

	require.NoError(t, v.Close())
	require.NoError(t, x.Close())
	assert.Equal(t, 0, nodes.OpenCursors())

	// Mutations are no longer retained for the closed views
	require.NoError(t, nodes.Assert(datalog.Fact{"id": 2}))
	require.NoError(t, q.RunQuery(), "with no open views RunQuery evaluates once")
	assert.Equal(t, []datalog.Record{{"id": int64(1)}}, v.ReadAllData())
	assert.True(t, errors.Is(v.RunQuery(), view.ErrClosed))
	assert.True(t, errors.Is(x.RunQuery(), view.ErrClosed))
}

func TestEngineCloseDetachesViews(t *testing.T) {
	e, err := New(Options{})
	require.NoError(t, err)
	nodes := intoTable(t, e, "Nodes", datalog.Record{"id": 1})
	q, err := e.Query(func(b *query.Builder) {
		b.Match(nodes, query.Pattern{"id": query.Var("id")})
	})
	require.NoError(t, err)
	_, err = q.View()
	require.NoError(t, err)
	assert.Equal(t, 1, nodes.OpenCursors())

	require.NoError(t, e.Close())
	assert.Equal(t, 0, nodes.OpenCursors())
}

func TestNegationCycleAcrossQueries(t *testing.T) {
	e := newEngine(t, Options{})
	base := intoTable(t, e, "Base", datalog.Record{"x": 1})
	a, err := e.NewTable(datalog.Schema{"x": datalog.TypeNumber}, table.WithName("A"))
	require.NoError(t, err)
	b, err := e.NewTable(datalog.Schema{"x": datalog.TypeNumber}, table.WithName("B"))
	require.NoError(t, err)

	// A(x) <- Base(x), not B(x)
	body1, err := e.Query(func(qb *query.Builder) {
		qb.Match(base, query.Pattern{"x": query.Var("x")})
		qb.Not(b, query.Pattern{"x": query.Var("x")})
	})
	require.NoError(t, err)
	q1, err := body1.Implies(func(hb *query.HeadBuilder) {
		hb.Into(a, query.Pattern{"x": query.Var("x")})
	})
	require.NoError(t, err)

	// B(x) <- A(x)
	body2, err := e.Query(func(qb *query.Builder) {
		qb.Match(a, query.Pattern{"x": query.Var("x")})
	})
	require.NoError(t, err)
	q2, err := body2.Implies(func(hb *query.HeadBuilder) {
		hb.Into(b, query.Pattern{"x": query.Var("x")})
	})
	require.NoError(t, err)

	for _, q := range []*Query{q1, q2} {
		err := q.RunQuery()
		require.Error(t, err)
		assert.True(t, errors.Is(err, datalog.ErrNotStratifiable))
		assert.True(t, errors.Is(err, datalog.ErrEvaluation))
	}
	_, err = q1.ViewExt()
	assert.True(t, errors.Is(err, datalog.ErrNotStratifiable))
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, 0, b.Len())
}

func TestNaNIsNotAFact(t *testing.T) {
	e := newEngine(t, Options{})
	m, err := e.NewTable(datalog.Schema{"v": datalog.TypeNumber}, table.WithName("M"))
	require.NoError(t, err)
	require.NoError(t, m.Assert(datalog.Fact{"v": 5}))

	err = m.Assert(datalog.Fact{"v": math.NaN()})
	assert.True(t, errors.Is(err, datalog.ErrTypeMismatch))
	assert.Equal(t, 1, m.Len())

	matched, err := e.Query(func(b *query.Builder) {
		b.Match(m, query.Pattern{"v": query.Fixed(7)})
		b.Match(m, query.Pattern{"v": query.Var("v")})
	})
	require.NoError(t, err)
	records, err := matched.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, records)

	negated, err := e.Query(func(b *query.Builder) {
		b.Match(m, query.Pattern{"v": query.Var("v")})
		b.Not(m, query.Pattern{"v": query.Fixed(7)})
	})
	require.NoError(t, err)
	records, err = negated.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []datalog.Record{{"v": int64(5)}}, records)
}
