package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimple_NumericComparators(t *testing.T) {
	cases := []struct {
		op       Operator
		left     float64
		right    float64
		expected bool
	}{
		{OpGT, 5, 3, true},
		{OpLT, 5, 3, false},
		{OpGE, 3, 3, true},
		{OpLE, 2, 3, true},
		{OpEQ, 3, 3, true},
		{OpNE, 3, 4, true},
	}
	for _, c := range cases {
		cond := NewSimple("left", c.op, c.right)
		ok, err := cond.Evaluate(map[string]any{"left": c.left})
		require.NoError(t, err)
		assert.Equal(t, c.expected, ok)
	}
}

func TestSimple_LexicalStringComparison(t *testing.T) {
	cond := NewSimple("name", OpLT, "banana")
	ok, err := cond.Evaluate(map[string]any{"name": "apple"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSimple_MissingVariableComparesAsNil(t *testing.T) {
	cond := NewSimple("missing", OpEQ, nil)
	ok, err := cond.Evaluate(map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpression_BooleanCombinators(t *testing.T) {
	e, err := NewExpression(`x > 1 && y == "ready"`)
	require.NoError(t, err)
	ok, err := e.Evaluate(map[string]any{"x": 2, "y": "ready"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(map[string]any{"x": 0, "y": "ready"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpression_RejectsNonBoolResult(t *testing.T) {
	_, err := NewExpression(`1 + 1`)
	require.Error(t, err)
}

func TestEvaluateAll_EmptyIsVacuouslyTrue(t *testing.T) {
	ok, err := EvaluateAll(nil, map[string]any{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluateAll_AnyFalseShortCircuits(t *testing.T) {
	conds := []Condition{
		NewSimple("a", OpEQ, 1.0),
		NewSimple("b", OpEQ, 2.0),
	}
	ok, err := EvaluateAll(conds, map[string]any{"a": 1.0, "b": 99.0})
	require.NoError(t, err)
	assert.False(t, ok)
}
