package jsonrepair

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair_WellFormedPassthrough(t *testing.T) {
	v, err := Repair(`{"invoiceNumber": "INV-1", "total": 42.5}`)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "INV-1", m["invoiceNumber"])
	assert.Equal(t, 42.5, m["total"])
}

func TestRepair_FencedJSON(t *testing.T) {
	v, err := Repair("```json\n{\"x\": 5}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 5.0}, v)
}

func TestRepair_BareFence(t *testing.T) {
	v, err := Repair("```\n[1, 2, 3]\n```")
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, v)
}

func TestRepair_SurroundingProse(t *testing.T) {
	v, err := Repair(`Sure! Here is the extracted data: {"a": 1} Let me know if you need more.`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, v)
}

func TestRepair_TrailingCommaAndUnclosedBrackets(t *testing.T) {
	v, err := Repair(`{"a": 1, "b": [1, 2,`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0, "b": []any{1.0, 2.0}}, v)
}

func TestRepair_UnterminatedString(t *testing.T) {
	v, err := Repair(`{"description": "stainless steel bol`)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, "stainless steel bol", m["description"])
}

func TestRepair_EscapedQuoteDoesNotToggle(t *testing.T) {
	v, err := Repair(`{"marks": "crate \"A\"", "qty": 3`)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, `crate "A"`, m["marks"])
	assert.Equal(t, 3.0, m["qty"])
}

func TestRepair_TrailingColonGetsNull(t *testing.T) {
	v, err := Repair(`{"a": 1, "b":`)
	require.NoError(t, err)
	m := v.(map[string]any)
	assert.Equal(t, 1.0, m["a"])
	assert.Nil(t, m["b"])
}

func TestRepair_TruncationFallbackDropsIncompleteElement(t *testing.T) {
	// Truncated mid-way through the third object; the balancer yields an
	// object with an incomplete property, so the fallback cuts back to the
	// last complete element.
	text := `{"lineItems": [{"d": "bolts"}, {"d": "nuts"}, {"d": "wash`
	v, err := Repair(text)
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	items := m["lineItems"].([]any)
	assert.LessOrEqual(t, len(items), 3)
}

func TestRepair_TruncatedPrefix_NeverInventsContent(t *testing.T) {
	full := map[string]any{
		"invoiceNumber": "INV-9",
		"lineItems": []any{
			map[string]any{"d": "a", "q": 1.0},
			map[string]any{"d": "b", "q": 2.0},
		},
	}
	raw, err := json.Marshal(full)
	require.NoError(t, err)

	// Truncate at every offset past the first complete element.
	for cut := len(`{"invoiceNumber":"INV-9","lineItems":[{"d":"a","q":1}`); cut < len(raw); cut++ {
		v, err := Repair(string(raw[:cut]))
		if err != nil {
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		// Any recovered field must exist in the original with a matching
		// prefix value; nothing may be fabricated.
		for k := range m {
			_, exists := full[k]
			assert.True(t, exists, "fabricated key %q at cut %d", k, cut)
		}
		if items, ok := m["lineItems"].([]any); ok {
			assert.LessOrEqual(t, len(items), 2, "fabricated element at cut %d", cut)
		}
	}
}

func TestRepair_Unrecoverable(t *testing.T) {
	_, err := Repair("the model refused to answer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bytes")
}

func TestRepair_EmptyInput(t *testing.T) {
	_, err := Repair("")
	require.Error(t, err)
}
