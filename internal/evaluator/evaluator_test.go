package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dandantas/renewer/internal/model"
)

const statusBody = `{
	"account": {"status": "active", "days_left": 30, "tags": ["premium", "renewed"]},
	"renewed": true
}`

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		rule    model.ProbeRule
		matched bool
		hasErr  bool
	}{
		{"eq string", model.ProbeRule{Expression: "$.account.status", Operator: "eq", ExpectedValue: "active"}, true, false},
		{"ne string", model.ProbeRule{Expression: "$.account.status", Operator: "ne", ExpectedValue: "active"}, false, false},
		{"gt number", model.ProbeRule{Expression: "$.account.days_left", Operator: "gt", ExpectedValue: 7}, true, false},
		{"lt numeric string", model.ProbeRule{Expression: "$.account.days_left", Operator: "lt", ExpectedValue: "10"}, false, false},
		{"contains array", model.ProbeRule{Expression: "$.account.tags", Operator: "contains", ExpectedValue: "renewed"}, true, false},
		{"eq bool from string", model.ProbeRule{Expression: "$.renewed", Operator: "eq", ExpectedValue: "true"}, true, false},
		{"exists", model.ProbeRule{Expression: "$.account.status", Operator: "exists"}, true, false},
		{"exists missing", model.ProbeRule{Expression: "$.account.missing", Operator: "exists"}, false, false},
		{"eq missing path", model.ProbeRule{Expression: "$.account.missing", Operator: "eq", ExpectedValue: "x"}, false, true},
		{"gt on text", model.ProbeRule{Expression: "$.account.status", Operator: "gt", ExpectedValue: 1}, false, true},
		{"unknown operator", model.ProbeRule{Expression: "$.renewed", Operator: "regex"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Evaluate(tt.rule, []byte(statusBody))

			assert.Equal(t, tt.matched, result.Matched)
			if tt.hasErr {
				assert.NotEmpty(t, result.Error)
			} else {
				assert.Empty(t, result.Error)
			}
		})
	}
}

func TestEvaluate_InvalidJSON(t *testing.T) {
	result := Evaluate(model.ProbeRule{Expression: "$.a", Operator: "exists"}, []byte("<html>"))

	assert.False(t, result.Matched)
	assert.Contains(t, result.Error, "Failed to parse JSON")
}

func TestAreEqual(t *testing.T) {
	assert.True(t, AreEqual(nil, nil))
	assert.False(t, AreEqual(nil, "null"))
	assert.True(t, AreEqual(float64(3), "3"))
	assert.True(t, AreEqual(true, "TRUE"))
	assert.False(t, AreEqual("yes", false))
	assert.True(t, AreEqual("a", "a"))
}
