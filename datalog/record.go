package datalog

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record is a mapping from field name to value. It is the shape of both
// table facts and query result tuples. Equality is structural.
type Record map[string]Value

// Fact is a Record stored in a Table
type Fact = Record

// Fields returns the field names in sorted order
func (r Record) Fields() []string {
	fields := make([]string, 0, len(r))
	for f := range r {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Compare orders records field by field over the sorted union of their
// field names. A missing field sorts before a present one.
func (r Record) Compare(other Record) int {
	fields := r.Fields()
	if len(other) != len(r) || !sameFields(fields, other) {
		seen := make(map[string]struct{}, len(r)+len(other))
		for _, f := range fields {
			seen[f] = struct{}{}
		}
		for f := range other {
			if _, ok := seen[f]; !ok {
				fields = append(fields, f)
			}
		}
		sort.Strings(fields)
	}
	for _, f := range fields {
		lv, lok := r[f]
		rv, rok := other[f]
		switch {
		case !lok && !rok:
			continue
		case !lok:
			return -1
		case !rok:
			return 1
		}
		if c := CompareValues(lv, rv); c != 0 {
			return c
		}
	}
	return 0
}

func sameFields(fields []string, other Record) bool {
	for _, f := range fields {
		if _, ok := other[f]; !ok {
			return false
		}
	}
	return true
}

// Equal reports structural equality
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for f, v := range r {
		ov, ok := other[f]
		if !ok || !ValuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy; values are immutable so that is enough
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for f, v := range r {
		out[f] = v
	}
	return out
}

// Project returns a record holding only the named fields present in r
func (r Record) Project(fields []string) Record {
	out := make(Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Key returns the canonical encoding as a string, usable as a map key
func (r Record) Key() string {
	return string(EncodeRecord(r))
}

// String renders {a: 1, b: "x"} with fields sorted
func (r Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f)
		sb.WriteString(": ")
		sb.WriteString(FormatValue(r[f]))
	}
	sb.WriteByte('}')
	return sb.String()
}

// FormatValue renders a single value the way Record.String does
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return fmt.Sprintf("%q", val)
	case int64:
		if val == Infinity {
			return "∞"
		}
		return fmt.Sprintf("%d", val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", val)
	}
}
