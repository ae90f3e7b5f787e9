package datalog

import (
	"fmt"
	"math"
	"time"
)

// Value represents any value that can be stored in a Fact
// We use interface{} with direct Go types, normalized on the way in
type Value interface{}

// Valid value types after Normalize:
// - int64 (integral numbers)
// - float64 (non-integral numbers, ±Inf; never NaN)
// - string
// - bool
// - time.Time (always UTC)

// ValueType is the lightweight type tag a Schema assigns to a field
type ValueType byte

const (
	TypeNumber ValueType = iota + 1
	TypeString
	TypeBool
	TypeTime
)

// Infinity is the sentinel for "no value yet" in shortest-path style
// computations. It is an ordinary int64 so comparisons stay well-defined.
const Infinity = int64(math.MaxInt64)

// String returns the tag name used by ParseValueType
func (t ValueType) String() string {
	switch t {
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	default:
		return fmt.Sprintf("ValueType(%d)", byte(t))
	}
}

// Valid reports whether t is one of the declared tags
func (t ValueType) Valid() bool {
	return t >= TypeNumber && t <= TypeTime
}

// ParseValueType converts a tag name into a ValueType
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "number":
		return TypeNumber, nil
	case "string":
		return TypeString, nil
	case "bool":
		return TypeBool, nil
	case "time":
		return TypeTime, nil
	}
	return 0, fmt.Errorf("unknown value type %q", s)
}

// TypeOf returns the tag of a normalized value
func TypeOf(v Value) (ValueType, bool) {
	switch v.(type) {
	case int64, float64:
		return TypeNumber, true
	case string:
		return TypeString, true
	case bool:
		return TypeBool, true
	case time.Time:
		return TypeTime, true
	}
	return 0, false
}

// Normalize converts a caller-supplied value into its canonical form.
// Integral numbers of any Go kind become int64 so that 1, int32(1) and 1.0
// are the same fact.
func Normalize(v Value) (Value, error) {
	switch val := v.(type) {
	case int64, string, bool:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint:
		if uint64(val) > math.MaxInt64 {
			return float64(val), nil
		}
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return float64(val), nil
		}
		return int64(val), nil
	case float32:
		return normalizeFloat(float64(val))
	case float64:
		return normalizeFloat(val)
	case time.Time:
		return val.UTC(), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func normalizeFloat(f float64) (Value, error) {
	if math.IsNaN(f) {
		return nil, ErrNaN
	}
	if math.IsInf(f, 0) {
		return f, nil
	}
	// 2^63 is not representable as int64
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f), nil
	}
	return f, nil
}

// MustNormalize is Normalize for literals known to be valid
func MustNormalize(v Value) Value {
	n, err := Normalize(v)
	if err != nil {
		panic(err)
	}
	return n
}

// IsInfinite reports whether v is the Infinity sentinel or a float infinity
func IsInfinite(v Value) bool {
	switch val := v.(type) {
	case int64:
		return val == Infinity
	case float64:
		return math.IsInf(val, 1)
	}
	return false
}

// SaturatingAdd adds two numbers, returning Infinity if either operand is
// infinite or the sum overflows. Non-numbers are an error.
func SaturatingAdd(a, b Value) (Value, error) {
	na, err := Normalize(a)
	if err != nil {
		return nil, err
	}
	nb, err := Normalize(b)
	if err != nil {
		return nil, err
	}
	if IsInfinite(na) || IsInfinite(nb) {
		return Infinity, nil
	}
	ia, aInt := na.(int64)
	ib, bInt := nb.(int64)
	if aInt && bInt {
		sum := ia + ib
		if (ib > 0 && sum < ia) || (ib < 0 && sum > ia) || sum == Infinity {
			return Infinity, nil
		}
		return sum, nil
	}
	fa, ok := toFloat(na)
	if !ok {
		return nil, fmt.Errorf("cannot add non-number %T", a)
	}
	fb, ok := toFloat(nb)
	if !ok {
		return nil, fmt.Errorf("cannot add non-number %T", b)
	}
	return normalizeFloat(fa + fb)
}

func toFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	}
	return 0, false
}
