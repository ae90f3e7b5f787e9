package table

import (
	"sort"

	"github.com/wbrown/janus-incremental/datalog"
)

// change is one effective mutation
type change struct {
	version uint64
	key     string
	fact    datalog.Fact
	added   bool
}

// changeLog keeps mutations that at least one cursor has not drained yet.
// Nothing is logged while no cursor is open.
type changeLog struct {
	entries []change
	cursors map[*Cursor]struct{}
}

func (l *changeLog) append(c change) {
	if len(l.cursors) == 0 {
		return
	}
	l.entries = append(l.entries, c)
}

// trim drops entries every cursor has consumed
func (l *changeLog) trim() {
	if len(l.entries) == 0 {
		return
	}
	min := l.entries[len(l.entries)-1].version
	for c := range l.cursors {
		if c.pos < min {
			min = c.pos
		}
	}
	i := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].version > min
	})
	if i == 0 {
		return
	}
	l.entries = append(l.entries[:0:0], l.entries[i:]...)
}

// Delta is the net change to a table between two drains of a cursor
type Delta struct {
	Added   []datalog.Fact
	Removed []datalog.Fact
}

// Empty reports whether the delta carries no change
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Cursor is a reader position in a table's pending-delta log
type Cursor struct {
	table *Table
	pos   uint64
}

// NewCursor opens a cursor positioned at the current version. The first
// Drain returns only mutations made after this call.
func (t *Table) NewCursor() *Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := &Cursor{table: t, pos: t.version}
	if t.log.cursors == nil {
		t.log.cursors = make(map[*Cursor]struct{})
	}
	t.log.cursors[c] = struct{}{}
	return c
}

// OpenCursors returns the number of cursors the change log is kept for
func (t *Table) OpenCursors() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.log.cursors)
}

// Table returns the table the cursor reads
func (c *Cursor) Table() *Table {
	return c.table
}

// Pending reports whether mutations happened since the last drain
func (c *Cursor) Pending() bool {
	c.table.mu.RLock()
	defer c.table.mu.RUnlock()
	return c.table.version != c.pos
}

// Drain returns the net delta since the last drain and advances the
// cursor. An assert and a retract of the same fact cancel out.
func (c *Cursor) Drain() Delta {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()

	type net struct {
		fact       datalog.Fact
		firstAdded bool
		lastAdded  bool
	}
	var order []string
	byKey := make(map[string]*net)
	for _, ch := range t.log.entries {
		if ch.version <= c.pos {
			continue
		}
		n, ok := byKey[ch.key]
		if !ok {
			n = &net{fact: ch.fact, firstAdded: ch.added}
			byKey[ch.key] = n
			order = append(order, ch.key)
		}
		n.lastAdded = ch.added
	}
	c.pos = t.version
	t.log.trim()

	var d Delta
	for _, k := range order {
		n := byKey[k]
		switch {
		case n.firstAdded && n.lastAdded:
			d.Added = append(d.Added, n.fact)
		case !n.firstAdded && !n.lastAdded:
			d.Removed = append(d.Removed, n.fact)
		}
	}
	return d
}

// Close detaches the cursor so the log no longer retains entries for it
func (c *Cursor) Close() {
	t := c.table
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.log.cursors, c)
	if len(t.log.cursors) == 0 {
		t.log.entries = nil
		return
	}
	t.log.trim()
}
