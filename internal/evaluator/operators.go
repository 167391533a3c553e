package evaluator

import (
	"fmt"
	"strings"
)

// EvaluateOperator applies a probe operator to the extracted value
func EvaluateOperator(operator string, extracted, expected interface{}) (bool, error) {
	switch strings.ToLower(operator) {
	case "eq":
		return AreEqual(extracted, expected), nil
	case "ne":
		return !AreEqual(extracted, expected), nil
	case "gt":
		cmp, err := CompareNumbers(extracted, expected)
		return cmp > 0, err
	case "lt":
		cmp, err := CompareNumbers(extracted, expected)
		return cmp < 0, err
	case "contains":
		return contains(extracted, expected), nil
	case "exists", "":
		return extracted != nil, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", operator)
	}
}

// contains matches an element of an array or a substring
func contains(extracted, expected interface{}) bool {
	if arr, ok := extracted.([]interface{}); ok {
		for _, item := range arr {
			if AreEqual(item, expected) {
				return true
			}
		}
		return false
	}
	return strings.Contains(CoerceToString(extracted), CoerceToString(expected))
}
