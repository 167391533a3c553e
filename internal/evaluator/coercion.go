package evaluator

import (
	"fmt"
	"strconv"
	"strings"
)

// CoerceToString renders any decoded JSON value as text
func CoerceToString(value interface{}) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", value)
}

// CoerceToNumber converts numbers and numeric strings to float64
func CoerceToNumber(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string '%s' to number", v)
		}
		return num, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}

// AreEqual compares two values, numerically when both sides are numeric,
// as booleans when either side is a bool, and as text otherwise
func AreEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	numA, errA := CoerceToNumber(a)
	numB, errB := CoerceToNumber(b)
	if errA == nil && errB == nil {
		return numA == numB
	}

	if boolA, ok := a.(bool); ok {
		return CoerceToString(boolA) == strings.ToLower(CoerceToString(b))
	}
	if boolB, ok := b.(bool); ok {
		return strings.ToLower(CoerceToString(a)) == CoerceToString(boolB)
	}

	return CoerceToString(a) == CoerceToString(b)
}

// CompareNumbers returns -1, 0 or 1 comparing a to b as numbers
func CompareNumbers(a, b interface{}) (int, error) {
	numA, err := CoerceToNumber(a)
	if err != nil {
		return 0, fmt.Errorf("cannot compare: left value - %w", err)
	}
	numB, err := CoerceToNumber(b)
	if err != nil {
		return 0, fmt.Errorf("cannot compare: right value - %w", err)
	}

	switch {
	case numA < numB:
		return -1, nil
	case numA > numB:
		return 1, nil
	}
	return 0, nil
}
