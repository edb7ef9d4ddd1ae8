package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeysByCodepoint(t *testing.T) {
	v := map[string]any{"b": 1, "a": 2, "c": 3}
	out, err := Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":3}`, string(out))
}

func TestMarshalIsDeterministicAcrossEquivalentStructs(t *testing.T) {
	type payload struct {
		Z string `json:"z"`
		A int    `json:"a"`
	}
	a, err := Marshal(payload{Z: "x", A: 1})
	require.NoError(t, err)
	b, err := Marshal(map[string]any{"a": 1, "z": "x"})
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMarshalRejectsInvalidHashField(t *testing.T) {
	_, err := Marshal(map[string]any{"receiptHash": "not-a-hash"})
	assert.Error(t, err)
}

func TestMarshalAcceptsValidHashField(t *testing.T) {
	valid := Hash([]byte("payload"))
	_, err := Marshal(map[string]any{"receiptHash": valid})
	assert.NoError(t, err)
}

func TestMarshalAcceptsEmptyHashField(t *testing.T) {
	_, err := Marshal(map[string]any{"receiptHash": ""})
	assert.NoError(t, err)
}

func TestHashJSONIsStableUnderKeyReordering(t *testing.T) {
	h1, err := HashJSON(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := HashJSON(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestHashJSONChangesWithValue(t *testing.T) {
	h1, err := HashJSON(map[string]any{"amountCents": 100})
	require.NoError(t, err)
	h2, err := HashJSON(map[string]any{"amountCents": 101})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestHashIsSHA256Hex(t *testing.T) {
	h := Hash([]byte("hello"))
	assert.Len(t, h, 64)
}

func TestMarshalEscapesControlCharacters(t *testing.T) {
	out, err := Marshal(map[string]any{"s": "a\nb\tc"})
	require.NoError(t, err)
	assert.Contains(t, string(out), `\n`)
	assert.Contains(t, string(out), `\t`)
}

func TestMarshalEscapesNonASCIIAsUnicodeSequence(t *testing.T) {
	out, err := Marshal(map[string]any{"s": string(rune(0x00e9))})
	require.NoError(t, err)
	assert.Contains(t, string(out), "\\u00e9")
}
