package condition_test

import (
	"testing"

	"github.com/aretw0/arbor/pkg/condition"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctx() map[string]any {
	return map[string]any{
		"state": map[string]any{
			"x":     1,
			"name":  "arbor",
			"tags":  []any{"a", "b"},
			"count": 3.0,
		},
		"inputs": map[string]any{"query": "hello world"},
		"result": map[string]any{
			"json":  map[string]any{"type": "list"},
			"items": []any{1, 2},
		},
	}
}

func TestEvaluate_Var(t *testing.T) {
	v, err := condition.Evaluate(map[string]any{"var": "state.x"}, ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, err = condition.Evaluate(map[string]any{"var": []any{"state.missing", "fallback"}}, ctx())
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	v, err = condition.Evaluate(map[string]any{"var": "result.json.type"}, ctx())
	require.NoError(t, err)
	assert.Equal(t, "list", v)

	v, err = condition.Evaluate(map[string]any{"var": ""}, ctx())
	require.NoError(t, err)
	assert.Equal(t, ctx(), v)
}

func TestEvaluate_Operators(t *testing.T) {
	tests := []struct {
		name string
		expr any
		want any
	}{
		{"Equal across numeric types", map[string]any{"==": []any{map[string]any{"var": "state.x"}, 1.0}}, true},
		{"Not equal", map[string]any{"!=": []any{map[string]any{"var": "state.name"}, "other"}}, true},
		{"Bool equals one", map[string]any{"==": []any{true, 1}}, true},
		{"Bool equals zero", map[string]any{"==": []any{false, 0.0}}, true},
		{"Bool differs from two", map[string]any{"!=": []any{true, 2}}, true},
		{"Bool is not a string", map[string]any{"==": []any{true, "true"}}, false},
		{"Less than", map[string]any{"<": []any{1, 2}}, true},
		{"Greater or equal", map[string]any{">=": []any{map[string]any{"var": "state.count"}, 3}}, true},
		{"String ordering", map[string]any{"<": []any{"a", "b"}}, true},
		{"Integer sum", map[string]any{"+": []any{1, 2, 3}}, int64(6)},
		{"Float sum", map[string]any{"+": []any{1, 0.5}}, 1.5},
		{"Subtract", map[string]any{"-": []any{5, 2}}, int64(3)},
		{"Product", map[string]any{"*": []any{2, 3}}, int64(6)},
		{"Divide", map[string]any{"/": []any{3, 2}}, 1.5},
		{"Not", map[string]any{"!": false}, true},
		{"And", map[string]any{"and": []any{true, 1, "x"}}, true},
		{"And short", map[string]any{"and": []any{true, 0}}, false},
		{"Or", map[string]any{"or": []any{false, "", map[string]any{"var": "state.x"}}}, true},
		{"In list", map[string]any{"in": []any{"b", map[string]any{"var": "state.tags"}}}, true},
		{"In string", map[string]any{"in": []any{"world", map[string]any{"var": "inputs.query"}}}, true},
		{"In map", map[string]any{"in": []any{"items", map[string]any{"var": "result"}}}, true},
		{"In nil", map[string]any{"in": []any{"a", nil}}, false},
		{"Max", map[string]any{"max": []any{1, 7, 3}}, 7},
		{"Min", map[string]any{"min": []any{4, 2.5, 3}}, 2.5},
		{"Literal", "plain", "plain"},
		{"List", []any{map[string]any{"var": "state.x"}, 2}, []any{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := condition.Evaluate(tt.expr, ctx())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := condition.Evaluate(map[string]any{"/": []any{1, 0}}, ctx())
	assert.ErrorContains(t, err, "division by zero")

	_, err = condition.Evaluate(map[string]any{"xor": []any{true, false}}, ctx())
	assert.ErrorContains(t, err, "unsupported operator 'xor'")

	_, err = condition.Evaluate(map[string]any{"==": []any{1, 1}, "!=": []any{1, 2}}, ctx())
	assert.ErrorContains(t, err, "exactly one operator")

	_, err = condition.Evaluate(map[string]any{"<": []any{1, "a"}}, ctx())
	assert.Error(t, err)
}

func TestEvaluateBool(t *testing.T) {
	ok, err := condition.EvaluateBool(map[string]any{"==": []any{map[string]any{"var": "state.x"}, 1}}, ctx())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = condition.EvaluateBool(map[string]any{"var": "state.missing"}, ctx())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = condition.EvaluateBool(map[string]any{"bogus": 1}, ctx())
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "failed to evaluate condition")
}

func TestTruthy(t *testing.T) {
	assert.False(t, condition.Truthy(nil))
	assert.False(t, condition.Truthy(0))
	assert.False(t, condition.Truthy(0.0))
	assert.False(t, condition.Truthy(""))
	assert.False(t, condition.Truthy([]any{}))
	assert.False(t, condition.Truthy(map[string]any{}))
	assert.True(t, condition.Truthy(int64(-1)))
	assert.True(t, condition.Truthy("0"))
	assert.True(t, condition.Truthy(struct{}{}))
}
