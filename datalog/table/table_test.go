package table

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-incremental/datalog"
	"github.com/wbrown/janus-incremental/datalog/annotations"
	"github.com/wbrown/janus-incremental/datalog/storage"
)

var peopleSchema = datalog.Schema{"firstName": datalog.TypeString, "lastName": datalog.TypeString}

func newPeople(t *testing.T, opts ...Option) *Table {
	tbl, err := New(peopleSchema, append([]Option{WithName("People")}, opts...)...)
	require.NoError(t, err)
	return tbl
}

func TestAssertIsIdempotent(t *testing.T) {
	people := newPeople(t)
	jamie := datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}

	added, err := people.AssertNew(jamie)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = people.AssertNew(jamie.Clone())
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, 1, people.Len())
	assert.Equal(t, uint64(1), people.Version(), "no-op assert does not bump the version")
	assert.True(t, people.Contains(jamie))
}

func TestRetractAbsentIsNoop(t *testing.T) {
	people := newPeople(t)
	require.NoError(t, people.Assert(datalog.Fact{"firstName": "Marco", "lastName": "Munizaga"}))

	require.NoError(t, people.Retract(datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}))
	assert.Equal(t, 1, people.Len())
	assert.Equal(t, uint64(1), people.Version())

	require.NoError(t, people.Retract(datalog.Fact{"firstName": "Marco", "lastName": "Munizaga"}))
	assert.Equal(t, 0, people.Len())
	assert.Equal(t, uint64(2), people.Version())
}

func TestSchemaViolationsLeaveTableUntouched(t *testing.T) {
	people := newPeople(t)

	err := people.Assert(datalog.Fact{"firstName": "Jamie", "lastName": 7})
	assert.True(t, errors.Is(err, datalog.ErrTypeMismatch))

	err = people.Assert(datalog.Fact{"firstName": "Jamie", "lastName": "Brandon", "age": 3})
	assert.True(t, errors.Is(err, datalog.ErrUnknownField))

	err = people.Retract(datalog.Fact{"firstName": "Jamie"})
	assert.True(t, errors.Is(err, datalog.ErrUnknownField))

	var se *datalog.SchemaError
	require.True(t, errors.As(people.Assert(datalog.Fact{"firstName": true, "lastName": "x"}), &se))
	assert.Equal(t, "People", se.Table)

	assert.Equal(t, 0, people.Len())
	assert.Equal(t, uint64(0), people.Version())
	assert.False(t, people.Contains(datalog.Fact{"firstName": 1}))
}

func TestNumbersNormalizeOnAssert(t *testing.T) {
	nums, err := New(datalog.Schema{"n": datalog.TypeNumber})
	require.NoError(t, err)

	require.NoError(t, nums.Assert(datalog.Fact{"n": 1}))
	require.NoError(t, nums.Assert(datalog.Fact{"n": int32(1)}))
	require.NoError(t, nums.Assert(datalog.Fact{"n": 1.0}))
	assert.Equal(t, 1, nums.Len())
	assert.Equal(t, []datalog.Record{{"n": int64(1)}}, nums.Records())
}

func TestFromRecords(t *testing.T) {
	greetings, err := FromRecords([]datalog.Record{
		{"language": "es", "greeting": "Hola"},
		{"language": "en", "greeting": "Hello"},
		{"language": "en", "greeting": "Hello"},
	}, WithName("Greetings"))
	require.NoError(t, err)

	assert.Equal(t, datalog.Schema{"language": datalog.TypeString, "greeting": datalog.TypeString}, greetings.Schema())
	assert.Equal(t, []datalog.Record{
		{"greeting": "Hello", "language": "en"},
		{"greeting": "Hola", "language": "es"},
	}, greetings.Records())

	_, err = FromRecords(nil)
	assert.True(t, errors.Is(err, datalog.ErrDefinition))

	_, err = FromRecords([]datalog.Record{{"a": "x"}, {"a": 1}})
	assert.True(t, errors.Is(err, datalog.ErrTypeMismatch))
}

func TestSchemaIsACopy(t *testing.T) {
	schema := datalog.Schema{"a": datalog.TypeString}
	tbl, err := New(schema)
	require.NoError(t, err)

	schema["b"] = datalog.TypeBool
	tbl.Schema()["c"] = datalog.TypeBool

	_, ok := tbl.FieldType("b")
	assert.False(t, ok)
	_, ok = tbl.FieldType("c")
	assert.False(t, ok)
	assert.Equal(t, "Table{a: string}", tbl.String())
}

func TestUndeclaredTable(t *testing.T) {
	var zero Table
	assert.False(t, zero.Declared())
	assert.True(t, errors.Is(zero.Assert(datalog.Fact{"a": "x"}), datalog.ErrDefinition))
	assert.Equal(t, 0, zero.Len())

	_, err := New(datalog.Schema{})
	assert.True(t, errors.Is(err, datalog.ErrDefinition))
}

func TestTableOnBadgerStore(t *testing.T) {
	p, err := storage.NewBadgerProvider()
	require.NoError(t, err)
	defer p.Close()
	store, err := p.NewStore("people")
	require.NoError(t, err)

	people := newPeople(t, WithStore(store))
	require.NoError(t, people.Assert(datalog.Fact{"firstName": "Marco", "lastName": "Munizaga"}))
	require.NoError(t, people.Assert(datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}))
	require.NoError(t, people.Assert(datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}))

	assert.Equal(t, []datalog.Record{
		{"firstName": "Jamie", "lastName": "Brandon"},
		{"firstName": "Marco", "lastName": "Munizaga"},
	}, people.Records())
	require.NoError(t, people.Close())
}

func TestTableEvents(t *testing.T) {
	c := annotations.NewRecordingCollector(nil)
	people := newPeople(t, WithHandler(c.Add))

	fact := datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}
	require.NoError(t, people.Assert(fact))
	require.NoError(t, people.Assert(fact))
	require.NoError(t, people.Retract(fact))

	asserted := c.Named(annotations.TableAsserted)
	require.Len(t, asserted, 1, "only effective mutations are reported")
	assert.Equal(t, "People", asserted[0].Data["table"])
	assert.Len(t, c.Named(annotations.TableRetracted), 1)
}

func TestCursorNetDelta(t *testing.T) {
	people := newPeople(t)
	jamie := datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}
	marco := datalog.Fact{"firstName": "Marco", "lastName": "Munizaga"}

	require.NoError(t, people.Assert(jamie))

	c := people.NewCursor()
	defer c.Close()
	assert.Same(t, people, c.Table())
	assert.False(t, c.Pending(), "mutations before the cursor opened are not pending")

	require.NoError(t, people.Assert(marco))
	require.NoError(t, people.Retract(jamie))
	assert.True(t, c.Pending())

	d := c.Drain()
	assert.Equal(t, []datalog.Fact{marco}, d.Added)
	assert.Equal(t, []datalog.Fact{jamie}, d.Removed)
	assert.False(t, c.Pending())
	assert.True(t, c.Drain().Empty())

	// Assert then retract cancels out
	require.NoError(t, people.Assert(jamie))
	require.NoError(t, people.Retract(jamie))
	assert.True(t, c.Pending())
	assert.True(t, c.Drain().Empty())
}

func TestCursorsDrainIndependently(t *testing.T) {
	people := newPeople(t)
	a := people.NewCursor()
	b := people.NewCursor()

	jamie := datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}
	require.NoError(t, people.Assert(jamie))

	assert.Len(t, a.Drain().Added, 1)
	assert.Len(t, people.log.entries, 1, "retained until every cursor drains")

	assert.Len(t, b.Drain().Added, 1)
	assert.Empty(t, people.log.entries)

	a.Close()
	require.NoError(t, people.Retract(jamie))
	assert.Len(t, people.log.entries, 1)
	b.Close()
	assert.Empty(t, people.log.entries)

	require.NoError(t, people.Assert(jamie))
	assert.Empty(t, people.log.entries, "nothing is logged without cursors")
}

func TestCloseDetachesCursors(t *testing.T) {
	people := newPeople(t)
	c := people.NewCursor()
	require.NoError(t, people.Assert(datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}))
	assert.Len(t, people.log.entries, 1)

	assert.Equal(t, 1, people.OpenCursors())
	require.NoError(t, people.Close())
	assert.Equal(t, 0, people.OpenCursors())
	assert.Empty(t, people.log.entries)
	assert.Empty(t, people.log.cursors)
	assert.True(t, c.Drain().Empty())
	c.Close()
}

func TestReadsReturnCopies(t *testing.T) {
	people := newPeople(t)
	require.NoError(t, people.Assert(datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}))

	facts, err := people.Snapshot()
	require.NoError(t, err)
	facts[0]["firstName"] = "Mallory"
	people.Records()[0]["lastName"] = "Mallory"

	assert.True(t, people.Contains(datalog.Fact{"firstName": "Jamie", "lastName": "Brandon"}))
	assert.Equal(t, []datalog.Record{{"firstName": "Jamie", "lastName": "Brandon"}}, people.Records())
}
