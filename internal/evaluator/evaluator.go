package evaluator

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dandantas/renewer/internal/model"
	"github.com/oliveagle/jsonpath"
)

// Result is the outcome of evaluating a probe rule against a JSON document
type Result struct {
	Expression     string      `json:"expression"`
	Operator       string      `json:"operator"`
	ExpectedValue  interface{} `json:"expected_value,omitempty"`
	ExtractedValue interface{} `json:"extracted_value,omitempty"`
	Matched        bool        `json:"matched"`
	Error          string      `json:"error,omitempty"`
}

// Evaluate checks a probe rule against a raw JSON body
func Evaluate(rule model.ProbeRule, body []byte) Result {
	result := Result{
		Expression:    rule.Expression,
		Operator:      rule.Operator,
		ExpectedValue: rule.ExpectedValue,
	}

	var document interface{}
	if err := json.Unmarshal(body, &document); err != nil {
		result.Error = fmt.Sprintf("Failed to parse JSON document: %v", err)
		return result
	}

	extracted, err := Extract(document, rule.Expression)
	if err != nil {
		result.Error = err.Error()
		// A missing path is a plain mismatch for "exists"
		if rule.Operator == "exists" {
			result.Error = ""
		}
		return result
	}
	result.ExtractedValue = extracted

	matched, err := EvaluateOperator(rule.Operator, extracted, rule.ExpectedValue)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Matched = matched

	slog.Debug("Probe rule evaluated",
		"expression", rule.Expression,
		"operator", rule.Operator,
		"extracted_value", extracted,
		"matched", matched,
	)

	return result
}

// Extract resolves a JSONPath expression against a decoded document
func Extract(document interface{}, expression string) (interface{}, error) {
	pattern, err := jsonpath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath expression '%s': %w", expression, err)
	}

	value, err := pattern.Lookup(document)
	if err != nil {
		return nil, fmt.Errorf("JSONPath expression '%s' returned no results: %w", expression, err)
	}

	return value, nil
}
