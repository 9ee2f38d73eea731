package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeObject_PlainJSON(t *testing.T) {
	var out struct {
		Summary string `json:"summary"`
	}
	ok := DecodeObject(`{"summary": "short"}`, &out)
	require.True(t, ok)
	assert.Equal(t, "short", out.Summary)
}

func TestDecodeObject_WrappedInProse(t *testing.T) {
	text := "Sure! Here is the analysis you asked for:\n\n```json\n" +
		`{"summary": "market is growing", "insights": ["a", "b"]}` +
		"\n```\nLet me know if you need anything else."
	var out struct {
		Summary  string   `json:"summary"`
		Insights []string `json:"insights"`
	}
	require.True(t, DecodeObject(text, &out))
	assert.Equal(t, "market is growing", out.Summary)
	assert.Len(t, out.Insights, 2)
}

func TestDecodeObject_NestedBraces(t *testing.T) {
	text := `prefix {"outer": {"inner": [1, 2, 3]}} suffix`
	var out map[string]any
	require.True(t, DecodeObject(text, &out))
	assert.Contains(t, out, "outer")
}

func TestDecodeObject_BracesInsideStrings(t *testing.T) {
	text := `{"note": "watch out for } and \" inside strings", "n": 1}`
	var out struct {
		Note string `json:"note"`
		N    int    `json:"n"`
	}
	require.True(t, DecodeObject(text, &out))
	assert.Equal(t, 1, out.N)
}

func TestDecodeObject_NoJSON(t *testing.T) {
	var out map[string]any
	assert.False(t, DecodeObject("I could not produce a structured answer.", &out))
}

func TestDecodeObject_UnbalancedJSON(t *testing.T) {
	var out map[string]any
	assert.False(t, DecodeObject(`{"summary": "truncated`, &out))
}

func TestDecodeObject_InvalidJSONLeavesDstUntouched(t *testing.T) {
	out := map[string]any{"keep": true}
	ok := DecodeObject(`{"bad": unquoted}`, &out)
	assert.False(t, ok)
	assert.Contains(t, out, "keep", "fallback value must survive a failed decode")
}

func TestDecodeArray_PlainJSON(t *testing.T) {
	var out []string
	require.True(t, DecodeArray(`["q1", "q2", "q3"]`, &out))
	assert.Equal(t, []string{"q1", "q2", "q3"}, out)
}

func TestDecodeArray_WrappedInProse(t *testing.T) {
	var out []string
	require.True(t, DecodeArray(`Here are the queries: ["a", "b"] — good luck!`, &out))
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestDecodeArray_NoArray(t *testing.T) {
	var out []string
	assert.False(t, DecodeArray("no structure at all", &out))
}
