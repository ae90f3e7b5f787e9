package datalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Schema maps each field of a table to its type tag. It is fixed when the
// table is created.
type Schema map[string]ValueType

// InferSchema derives a schema from the shape of one record
func InferSchema(r Record) (Schema, error) {
	if len(r) == 0 {
		return nil, Definitionf("cannot infer a schema from an empty record")
	}
	s := make(Schema, len(r))
	for f, v := range r {
		n, err := Normalize(v)
		if err != nil {
			return nil, Definitionf("field %q: %v", f, err)
		}
		t, _ := TypeOf(n)
		s[f] = t
	}
	return s, nil
}

// Check reports whether the schema itself is well formed
func (s Schema) Check() error {
	if len(s) == 0 {
		return Definitionf("schema has no fields")
	}
	for f, t := range s {
		if f == "" {
			return Definitionf("schema has an empty field name")
		}
		if !t.Valid() {
			return Definitionf("field %q has unknown type %v", f, t)
		}
	}
	return nil
}

// Fields returns the field names in sorted order
func (s Schema) Fields() []string {
	fields := make([]string, 0, len(s))
	for f := range s {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Has reports whether the schema declares field
func (s Schema) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Validate checks r against the schema and returns a normalized copy.
// Errors are always *SchemaError; extra and missing fields are both
// UnknownField, a wrong value kind is TypeMismatch.
func (s Schema) Validate(table string, r Record) (Record, error) {
	out := make(Record, len(s))
	// Sorted so the first reported error is deterministic
	for _, f := range r.Fields() {
		declared, ok := s[f]
		if !ok {
			return nil, &SchemaError{Table: table, Field: f, Kind: UnknownField, Expected: "absent", Got: "present"}
		}
		n, err := Normalize(r[f])
		if errors.Is(err, ErrNaN) {
			return nil, &SchemaError{Table: table, Field: f, Kind: TypeMismatch, Expected: declared.String(), Got: "NaN"}
		}
		if err != nil {
			return nil, &SchemaError{Table: table, Field: f, Kind: TypeMismatch, Expected: declared.String(), Got: fmt.Sprintf("%T", r[f])}
		}
		actual, _ := TypeOf(n)
		if actual != declared {
			return nil, &SchemaError{Table: table, Field: f, Kind: TypeMismatch, Expected: declared.String(), Got: actual.String()}
		}
		out[f] = n
	}
	if len(out) != len(s) {
		for _, f := range s.Fields() {
			if _, ok := out[f]; !ok {
				return nil, &SchemaError{Table: table, Field: f, Kind: UnknownField, Expected: "present", Got: "absent"}
			}
		}
	}
	return out, nil
}

// String renders the schema as {field: type, ...}
func (s Schema) String() string {
	parts := make([]string, 0, len(s))
	for _, f := range s.Fields() {
		parts = append(parts, f+": "+s[f].String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
