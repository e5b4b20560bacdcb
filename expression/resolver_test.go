package expression

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkit/topicflow/errors"
	"github.com/flowkit/topicflow/memory"
	"github.com/flowkit/topicflow/types"
)

type stubScriptRunner struct {
	results map[string]string
	calls   []string
}

func (s *stubScriptRunner) Run(_ context.Context, name string, _ ...string) (string, error) {
	s.calls = append(s.calls, name)
	result, ok := s.results[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrScriptNotFound, name)
	}
	return result, nil
}

func newTestResolver(t *testing.T, options ...ResolverOption) (*Resolver, *memory.Store) {
	t.Helper()
	store := memory.NewStore(memory.DefaultRecentCapacity)
	calc := newTestCalculator(t)
	return NewResolver(store, calc, options...), store
}

func entryWithPayload(payload string) *types.TopicEntry {
	return &types.TopicEntry{Topic: "sensors/value", Payload: payload}
}

func TestResolve_LiteralPassesThrough(t *testing.T) {
	resolver, _ := newTestResolver(t)

	for _, text := range []string{
		"on",
		`{"state": "on", "brightness": 128}`,
		"free text with 'embedded quotes'",
	} {
		result, err := resolver.Resolve(context.Background(), text, nil)
		require.NoError(t, err)
		assert.Equal(t, text, result)
	}
}

func TestResolve_InputSubstitution(t *testing.T) {
	resolver, _ := newTestResolver(t)

	result, err := resolver.Resolve(context.Background(), "value is input", entryWithPayload("42"))
	require.NoError(t, err)
	assert.Equal(t, "value is 42", result)
}

func TestResolve_CalcWithInput(t *testing.T) {
	resolver, _ := newTestResolver(t)

	result, err := resolver.Resolve(context.Background(), "Calc((input*5)+3)", entryWithPayload("1.3"))
	require.NoError(t, err)
	assert.Equal(t, "9.5", result)
}

func TestResolve_ReadFromMemory(t *testing.T) {
	resolver, store := newTestResolver(t)
	store.Remember(types.TopicEntry{Topic: "house/temperature", Payload: "21.5"})

	result, err := resolver.Resolve(context.Background(), "Read('house/temperature')", nil)
	require.NoError(t, err)
	assert.Equal(t, "21.5", result)

	// Absent topics resolve to the empty string.
	result, err = resolver.Resolve(context.Background(), "[Read('missing/topic')]", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", result)
}

func TestResolve_NestedInsideOut(t *testing.T) {
	resolver, store := newTestResolver(t)
	store.Remember(types.TopicEntry{Topic: "counter", Payload: "5"})

	result, err := resolver.Resolve(context.Background(), "Calc(Read('counter') + 1)", nil)
	require.NoError(t, err)
	assert.Equal(t, "6", result)
}

func TestResolve_ScriptCall(t *testing.T) {
	runner := &stubScriptRunner{results: map[string]string{"GetCalendarWeek": "35"}}
	resolver, _ := newTestResolver(t, WithScriptRunner(runner))

	result, err := resolver.Resolve(context.Background(), "week ::GetCalendarWeek();", nil)
	require.NoError(t, err)
	assert.Equal(t, "week 35", result)
	assert.Equal(t, []string{"GetCalendarWeek"}, runner.calls)
}

func TestResolve_ScriptWithoutRunnerFails(t *testing.T) {
	resolver, _ := newTestResolver(t)

	_, err := resolver.Resolve(context.Background(), "::GetCalendarWeek()", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrScriptNotFound)
}

func TestResolve_MalformedCalc(t *testing.T) {
	resolver, _ := newTestResolver(t)

	_, err := resolver.Resolve(context.Background(), "Calc(1 +)", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEvaluationFailed)
}

func TestResolveGuard(t *testing.T) {
	tests := []struct {
		name     string
		guard    string
		payload  string
		expected bool
	}{
		{name: "empty_guard_fires", guard: "", payload: "x", expected: true},
		{name: "comparison_true", guard: "input > 5", payload: "42", expected: true},
		{name: "comparison_false", guard: "input > 5", payload: "3", expected: false},
		{name: "equality", guard: "Calc(input==100)", payload: "100", expected: true},
		{name: "equality_miss", guard: "Calc(input==100)", payload: "99", expected: false},
		{name: "negation", guard: "Calc(not input)", payload: "0", expected: true},
		{name: "false_literal", guard: "input", payload: "false", expected: false},
		{name: "true_literal", guard: "input", payload: "true", expected: true},
		{name: "zero_payload", guard: "input", payload: "0", expected: false},
		{name: "numeric_nonzero", guard: "input", payload: "7.5", expected: true},
		{name: "bare_text_truthy", guard: "input", payload: "on", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, _ := newTestResolver(t)
			fires, err := resolver.ResolveGuard(context.Background(), tt.guard, entryWithPayload(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, fires)
		})
	}
}

func TestResolveGuard_EmptyPayloadDoesNotFire(t *testing.T) {
	resolver, _ := newTestResolver(t)

	fires, err := resolver.ResolveGuard(context.Background(), "input", entryWithPayload(""))
	require.NoError(t, err)
	assert.False(t, fires)
}

func TestResolveGuard_MalformedGuardErrors(t *testing.T) {
	resolver, _ := newTestResolver(t)

	_, err := resolver.ResolveGuard(context.Background(), "input >", entryWithPayload("3"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrEvaluationFailed)
}

func TestPreparePayload(t *testing.T) {
	resolver, store := newTestResolver(t)
	store.Remember(types.TopicEntry{Topic: "test1b", Payload: "7"})

	tests := []struct {
		name     string
		target   string
		payload  string
		expected string
	}{
		{name: "passthrough_literal", target: "on", payload: "x", expected: "on"},
		{name: "passthrough_json", target: `{"state": "input"}`, payload: `x`, expected: `{"state": "x"}`},
		{name: "bare_calculation", target: "input * 2", payload: "21", expected: "42"},
		{name: "increment_from_memory", target: "Calc(Read('test1b') + 1)", payload: "", expected: "8"},
		{name: "calc_then_literal", target: "Calc(2*3) items", payload: "", expected: "6 items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := resolver.PreparePayload(context.Background(), tt.target, entryWithPayload(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestPreparePayload_JSONPropertyExtraction(t *testing.T) {
	resolver, _ := newTestResolver(t)
	entry := entryWithPayload(`{"DateTime":"2026-08-30 16:30:45","TimeShort":"16:30"}`)

	result, err := resolver.PreparePayload(context.Background(), "$['TimeShort']", entry)
	require.NoError(t, err)
	assert.Equal(t, "16:30", result)
}

func TestPreparePayload_CalcFailureKeepsResolvedText(t *testing.T) {
	resolver, _ := newTestResolver(t)

	// Looks like a calculation because of the slash but is not one.
	result, err := resolver.PreparePayload(context.Background(), "n/a", nil)
	require.NoError(t, err)
	assert.Equal(t, "n/a", result)
}

func TestTruthy(t *testing.T) {
	truthy := []string{"1", "true", "TRUE", "7", "0.5", "-3", "on", " yes "}
	falsy := []string{"", "0", "false", "False", " 0 ", "0.0"}

	for _, v := range truthy {
		assert.True(t, Truthy(v), "value %q", v)
	}
	for _, v := range falsy {
		assert.False(t, Truthy(v), "value %q", v)
	}
}

func TestIsCalculation(t *testing.T) {
	assert.True(t, IsCalculation("1 + 2"))
	assert.True(t, IsCalculation("not 0"))
	assert.False(t, IsCalculation("plain text"))
	assert.False(t, IsCalculation("nothing notable"))
}
