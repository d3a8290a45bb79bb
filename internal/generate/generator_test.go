package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCache struct{ n int }

func (c *mockCache) Clear()   { c.n = 0 }
func (c *mockCache) Len() int { return c.n }

// mockModel emits a scripted token sequence: the k-th Forward call returns
// one-hot logits for script[k].
type mockModel struct {
	vocab     int
	context   int
	script    []int32
	calls     int
	positions []int
}

func (m *mockModel) Forward(tokens []int32, cache KVCache, startPos int) []float32 {
	c := cache.(*mockCache)
	if c.n != startPos {
		panic("cache out of sync with startPos")
	}
	c.n += len(tokens)
	m.positions = append(m.positions, startPos)

	logits := make([]float32, m.vocab)
	next := m.script[len(m.script)-1]
	if m.calls < len(m.script) {
		next = m.script[m.calls]
	}
	m.calls++
	logits[next] = 10
	return logits
}

func (m *mockModel) NewCache() KVCache { return &mockCache{} }
func (m *mockModel) VocabSize() int    { return m.vocab }
func (m *mockModel) ContextSize() int  { return m.context }

const eos = int32(9)

func greedy(maxNew int) Config {
	cfg := DefaultConfig()
	cfg.MaxNewTokens = maxNew
	return cfg
}

func TestGenerate_ReturnsOnlyNewTokens(t *testing.T) {
	model := &mockModel{vocab: 10, context: 64, script: []int32{4, 5, 6, 7}}
	res, err := NewGenerator(model, eos).Generate([]int32{1, 2, 3}, greedy(3))
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 5, 6}, res.Tokens)
	assert.Equal(t, StopMaxTokens, res.Reason)
	assert.Equal(t, []int{0, 3, 4}, model.positions)
}

func TestGenerate_StopsAtEOS(t *testing.T) {
	model := &mockModel{vocab: 10, context: 64, script: []int32{4, eos, 5}}
	res, err := NewGenerator(model, eos).Generate([]int32{1}, greedy(10))
	require.NoError(t, err)
	assert.Equal(t, []int32{4}, res.Tokens)
	assert.Equal(t, StopEOS, res.Reason)
}

func TestGenerate_StopsAtPadToken(t *testing.T) {
	model := &mockModel{vocab: 10, context: 64, script: []int32{4, 8, 5}}
	cfg := greedy(10)
	cfg.PadTokenID = 8
	res, err := NewGenerator(model, eos).Generate([]int32{1}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []int32{4}, res.Tokens)
}

func TestGenerate_ImmediateEOS(t *testing.T) {
	model := &mockModel{vocab: 10, context: 64, script: []int32{eos}}
	res, err := NewGenerator(model, eos).Generate([]int32{1, 2}, greedy(5))
	require.NoError(t, err)
	assert.Empty(t, res.Tokens)
	assert.Equal(t, StopEOS, res.Reason)
}

func TestGenerate_StopsAtContextLimit(t *testing.T) {
	model := &mockModel{vocab: 10, context: 5, script: []int32{4}}
	res, err := NewGenerator(model, eos).Generate([]int32{1, 2, 3}, greedy(50))
	require.NoError(t, err)
	// Only position 3 is fed: the token sampled after it fills the context.
	assert.Len(t, res.Tokens, 2)
	assert.Equal(t, StopContext, res.Reason)
	assert.Equal(t, []int{0, 3}, model.positions)
	assert.Equal(t, model.context, 3+len(res.Tokens))
}

func TestGenerate_Errors(t *testing.T) {
	model := &mockModel{vocab: 10, context: 4, script: []int32{4}}
	gen := NewGenerator(model, eos)

	tests := []struct {
		name    string
		input   []int32
		maxNew  int
		wantErr error
	}{
		{"empty input", nil, 5, ErrEmptyInput},
		{"zero max tokens", []int32{1}, 0, ErrInvalidMaxTokens},
		{"negative max tokens", []int32{1}, -3, ErrInvalidMaxTokens},
		{"input fills context", []int32{1, 2, 3, 4}, 5, ErrInputTooLong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gen.Generate(tt.input, greedy(tt.maxNew))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, model.calls, "errors are reported before any forward pass")
}

func TestGenerateWith_SharedSampler(t *testing.T) {
	model := &mockModel{vocab: 10, context: 64, script: []int32{4, 5}}
	gen := NewGenerator(model, eos)
	sampler := NewSampler(greedy(2))
	res, err := gen.GenerateWith(sampler, []int32{1}, greedy(2))
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 5}, res.Tokens)
}
