package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runeEncoder encodes every rune as its code point, a stand-in for a real
// tiktoken encoding that needs no downloaded ranks.
type runeEncoder struct{}

func (runeEncoder) EncodeOrdinary(text string) []int {
	ids := make([]int, 0, len(text))
	for _, r := range text {
		ids = append(ids, int(r))
	}
	return ids
}

func (runeEncoder) Decode(tokens []int) string {
	out := make([]rune, len(tokens))
	for i, id := range tokens {
		out[i] = rune(id)
	}
	return string(out)
}

func newTestTikToken(t *testing.T, corpus ...string) *TikToken {
	t.Helper()
	tok, err := newTikToken(runeEncoder{}, "test", collectIDs(runeEncoder{}, corpus))
	require.NoError(t, err)
	return tok
}

func TestTikToken_LocalVocabulary(t *testing.T) {
	tok := newTestTikToken(t, "abba", "cab")

	// Local ids follow the sorted encoding ids: a=97, b=98, c=99.
	assert.Equal(t, 5, tok.VocabSize())
	ids, err := tok.Encode("cab")
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 0, 1}, ids)
	assert.Equal(t, int32(3), tok.UnkToken())
	assert.Equal(t, int32(4), tok.EosToken())
	assert.Equal(t, tok.EosToken(), tok.BosToken())
	assert.Equal(t, int32(-1), tok.PadToken())
}

func TestTikToken_Roundtrip(t *testing.T) {
	tok := newTestTikToken(t, "hello world")

	tests := []struct {
		name string
		text string
	}{
		{"full", "hello world"},
		{"subset", "low"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := tok.Encode(tt.text)
			require.NoError(t, err)
			text, err := tok.Decode(ids)
			require.NoError(t, err)
			assert.Equal(t, tt.text, text)
		})
	}
}

func TestTikToken_UnknownAndSpecial(t *testing.T) {
	tok := newTestTikToken(t, "ab")

	ids, err := tok.Encode("axb")
	require.NoError(t, err)
	assert.Equal(t, []int32{0, tok.UnkToken(), 1}, ids)

	text, err := tok.Decode(append(ids, tok.EosToken()))
	require.NoError(t, err)
	assert.Equal(t, "ab", text, "special tokens are skipped")
	assert.True(t, tok.IsSpecialToken(tok.UnkToken()))
	assert.False(t, tok.IsSpecialToken(0))
}

func TestTikToken_Spec(t *testing.T) {
	tok := newTestTikToken(t, "ba")
	spec := tok.Spec()
	assert.Equal(t, ModeBPE, spec.Mode)
	assert.Equal(t, "test", spec.Encoding)
	assert.Equal(t, []int{97, 98}, spec.BPETokenIDs)
}

func TestTikToken_InvalidVocabulary(t *testing.T) {
	_, err := newTikToken(runeEncoder{}, "test", nil)
	assert.Error(t, err)
	_, err = newTikToken(runeEncoder{}, "test", []int{1, 1})
	assert.Error(t, err)
}
