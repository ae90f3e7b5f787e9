package executor

import (
	"sort"

	"github.com/wbrown/janus-incremental/datalog"
)

// ResultSet is the deduplicated, deterministically ordered output of one
// rule evaluation
type ResultSet struct {
	fields  []string
	records []datalog.Record
	keys    map[string]struct{}
}

// NewResultSet sorts and deduplicates records over the given fields
func NewResultSet(fields []string, records []datalog.Record) *ResultSet {
	rs := &ResultSet{fields: fields, keys: make(map[string]struct{}, len(records))}
	for _, r := range records {
		k := r.Key()
		if _, dup := rs.keys[k]; dup {
			continue
		}
		rs.keys[k] = struct{}{}
		rs.records = append(rs.records, r)
	}
	sort.Slice(rs.records, func(i, j int) bool {
		return rs.records[i].Compare(rs.records[j]) < 0
	})
	return rs
}

// Fields returns the result field names
func (rs *ResultSet) Fields() []string {
	return rs.fields
}

// Records returns the results in order
func (rs *ResultSet) Records() []datalog.Record {
	return rs.records
}

// Len returns the number of results
func (rs *ResultSet) Len() int {
	return len(rs.records)
}

// Contains reports whether an equal record is in the set
func (rs *ResultSet) Contains(r datalog.Record) bool {
	norm := make(datalog.Record, len(r))
	for f, v := range r {
		n, err := datalog.Normalize(v)
		if err != nil {
			return false
		}
		norm[f] = n
	}
	_, ok := rs.keys[norm.Key()]
	return ok
}
