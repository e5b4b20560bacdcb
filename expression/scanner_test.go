package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_NoCallsIsLiteral(t *testing.T) {
	for _, text := range []string{
		"",
		"plain text",
		`{"state": "on", "brightness": 128}`,
		"reading(5)", // identifier boundary, not Read(
		"recalc(2)",  // identifier boundary, not Calc(
		"Read without parens",
		"Calc(unbalanced",
	} {
		_, ok := scan(text)
		assert.False(t, ok, "text %q", text)
	}
}

func TestScan_FindsCalls(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		kind     callKind
		arg      string
		callText string
	}{
		{name: "read", text: "Read('Variable1')", kind: callRead, arg: "'Variable1'", callText: "Read('Variable1')"},
		{name: "read_case_folded", text: "prefix read(x) suffix", kind: callRead, arg: "x", callText: "read(x)"},
		{name: "calc", text: "Calc(1+2)", kind: callCalc, arg: "1+2", callText: "Calc(1+2)"},
		{name: "calc_nested_parens", text: "Calc((1.3*5)+3)", kind: callCalc, arg: "(1.3*5)+3", callText: "Calc((1.3*5)+3)"},
		{name: "script", text: "::GetCalendarWeek();", kind: callScript, arg: "", callText: "::GetCalendarWeek();"},
		{name: "script_with_args", text: "week ::Format('kw', 35)", kind: callScript, arg: "'kw', 35", callText: "::Format('kw', 35)"},
		{name: "quoted_paren_ignored", text: `Calc('a)b' == 'a)b')`, kind: callCalc, arg: "'a)b' == 'a)b'", callText: `Calc('a)b' == 'a)b')`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := scan(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.kind, c.kind)
			assert.Equal(t, tt.arg, c.arg)
			assert.Equal(t, tt.callText, tt.text[c.start:c.end])
		})
	}
}

func TestScan_InnermostLeftmostFirst(t *testing.T) {
	c, ok := scan("Calc(Read('counter') + 1)")
	require.True(t, ok)
	assert.Equal(t, callRead, c.kind)
	assert.Equal(t, "'counter'", c.arg)

	c, ok = scan("Read('a') + Calc(2*3)")
	require.True(t, ok)
	assert.Equal(t, callRead, c.kind)

	c, ok = scan("Calc(Calc(1+1) * Read('b'))")
	require.True(t, ok)
	assert.Equal(t, callCalc, c.kind)
	assert.Equal(t, "1+1", c.arg)
}

func TestScan_ScriptName(t *testing.T) {
	c, ok := scan("::GetCalendarWeek()")
	require.True(t, ok)
	assert.Equal(t, callScript, c.kind)
	assert.Equal(t, "GetCalendarWeek", c.name)
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "topic/a", unquote("'topic/a'"))
	assert.Equal(t, "topic/a", unquote(`"topic/a"`))
	assert.Equal(t, "topic/a", unquote("  'topic/a' "))
	assert.Equal(t, "bare", unquote("bare"))
	assert.Equal(t, "'mismatch\"", unquote("'mismatch\""))
}

func TestSplitArgs(t *testing.T) {
	assert.Nil(t, splitArgs("  "))
	assert.Equal(t, []string{"a"}, splitArgs("a"))
	assert.Equal(t, []string{"kw", "35"}, splitArgs("'kw', 35"))
	assert.Equal(t, []string{"a,b", "c"}, splitArgs("'a,b', c"))
	assert.Equal(t, []string{"f(1,2)", "x"}, splitArgs("f(1,2), x"))
}

func TestReplaceFold(t *testing.T) {
	assert.Equal(t, "42 > 5", replaceFold("input > 5", "input", "42"))
	assert.Equal(t, "42 == 42", replaceFold("Input == INPUT", "input", "42"))
	assert.Equal(t, "no placeholder", replaceFold("no placeholder", "input", "42"))
}
