package expression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/topicflow/errors"
)

func newTestCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator()
	require.NoError(t, err)
	t.Cleanup(func() { _ = calc.Close() })
	return calc
}

func TestCalculator_Evaluate(t *testing.T) {
	calc := newTestCalculator(t)

	tests := []struct {
		name     string
		expr     string
		expected string
	}{
		{name: "arithmetic_with_decimal", expr: "(1.3*5)+3", expected: "9.5"},
		{name: "integer_arithmetic", expr: "2+3*4", expected: "14"},
		{name: "equality_true", expr: "100==100", expected: "1"},
		{name: "equality_false", expr: "99==100", expected: "0"},
		{name: "comparison", expr: "7 > 5", expected: "1"},
		{name: "not_zero", expr: "not 0", expected: "1"},
		{name: "not_one", expr: "not 1", expected: "0"},
		{name: "logical_and", expr: "1 && 1", expected: "1"},
		{name: "logical_or", expr: "0 || 1", expected: "1"},
		{name: "true_literal", expr: "true", expected: "1"},
		{name: "false_literal", expr: "false", expected: "0"},
		{name: "boolean_mix", expr: "true && not false", expected: "1"},
		{name: "string_comparison", expr: "'on' == 'on'", expected: "1"},
		{name: "string_mismatch", expr: "'on' == 'off'", expected: "0"},
		{name: "modulo", expr: "10 % 3", expected: "1"},
		{name: "negative_result", expr: "3-10", expected: "-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := calc.Evaluate(context.Background(), tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCalculator_EvaluateMalformed(t *testing.T) {
	calc := newTestCalculator(t)

	for _, expr := range []string{"", "   ", "1 +", "((2)", "no_such_column + 1"} {
		_, err := calc.Evaluate(context.Background(), expr)
		require.Error(t, err, "expression %q", expr)
		assert.ErrorIs(t, err, errors.ErrEvaluationFailed)
		assert.True(t, errors.IsInvalid(err))
	}
}

func TestNormalizeCalcExpr(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "and_or", in: "1&&0||1", expected: "1 AND 0 OR 1"},
		{name: "literals", in: "true == false", expected: "1 == 0"},
		{name: "not_word", in: "not 0", expected: "NOT 0"},
		{name: "quoted_untouched", in: "'true && false'", expected: "'true && false'"},
		{name: "identifier_boundary", in: "'nothing' == 'truth'", expected: "'nothing' == 'truth'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeCalcExpr(tt.in))
		})
	}
}
