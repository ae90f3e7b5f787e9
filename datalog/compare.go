package datalog

import (
	"strings"
	"time"
)

// CompareValues compares two values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// The order is total over normalized values:
// - Numbers compare numerically across int64 and float64
// - Strings, bools and times compare naturally
// - Values of different type tags order by tag
// - nil is less than any non-nil value
func CompareValues(left, right Value) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return -1
	}
	if right == nil {
		return 1
	}

	lt, lok := TypeOf(left)
	rt, rok := TypeOf(right)
	if !lok || !rok {
		// Unnormalized input; fall back to normalizing once
		var err error
		if !lok {
			if left, err = Normalize(left); err != nil {
				return -1
			}
			lt, _ = TypeOf(left)
		}
		if !rok {
			if right, err = Normalize(right); err != nil {
				return 1
			}
			rt, _ = TypeOf(right)
		}
	}
	if lt != rt {
		return compareInts(int64(lt), int64(rt))
	}

	switch l := left.(type) {
	case int64:
		switch r := right.(type) {
		case int64:
			return compareInts(l, r)
		case float64:
			return compareFloats(float64(l), r)
		}
	case float64:
		switch r := right.(type) {
		case int64:
			return compareFloats(l, float64(r))
		case float64:
			return compareFloats(l, r)
		}
	case string:
		return strings.Compare(l, right.(string))
	case bool:
		r := right.(bool)
		if !l && r {
			return -1
		} else if l && !r {
			return 1
		}
		return 0
	case time.Time:
		r := right.(time.Time)
		if l.Before(r) {
			return -1
		} else if l.After(r) {
			return 1
		}
		return 0
	}
	return 0
}

// ValuesEqual checks if two values are equal under CompareValues
func ValuesEqual(a, b Value) bool {
	if a == b {
		return true
	}
	return CompareValues(a, b) == 0
}

func compareInts(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

func compareFloats(a, b float64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
