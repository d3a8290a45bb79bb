package eval

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/tinychat/internal/generate"
	"github.com/born-ml/tinychat/internal/inference"
	"github.com/born-ml/tinychat/internal/tinygpt"
	"github.com/born-ml/tinychat/internal/tokenizer"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordModel has one token per word; token i is the i-th distinct word seen.
// The loss of a token is tokenLoss[word] (default 2.0).
type wordModel struct {
	vocab     map[string]int32
	words     []string
	tokenLoss map[string]float64
	scored    [][]int32
	gotCfgs   []generate.Config
}

func newWordModel() *wordModel {
	return &wordModel{vocab: map[string]int32{}, tokenLoss: map[string]float64{}}
}

func (m *wordModel) Tokenize(text string, maxLength int) ([]int32, error) {
	var ids []int32
	for _, w := range strings.Fields(text) {
		id, ok := m.vocab[w]
		if !ok {
			id = int32(len(m.words))
			m.vocab[w] = id
			m.words = append(m.words, w)
		}
		ids = append(ids, id)
	}
	if maxLength > 0 && len(ids) > maxLength {
		ids = ids[:maxLength]
	}
	return ids, nil
}

func (m *wordModel) Generate(input []int32, cfg generate.Config) ([]int32, error) {
	m.gotCfgs = append(m.gotCfgs, cfg)
	return m.Tokenize("more words", 0)
}

func (m *wordModel) Decode(tokens []int32) (string, error) {
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = m.words[t]
	}
	return strings.Join(words, " "), nil
}

func (m *wordModel) ScoreSequence(tokens []int32) (float64, int, error) {
	m.scored = append(m.scored, tokens)
	var total float64
	for _, t := range tokens {
		loss, ok := m.tokenLoss[m.words[t]]
		if !ok {
			loss = 2.0
		}
		total += loss
	}
	return total / float64(len(tokens)), len(tokens), nil
}

func (m *wordModel) EOSTokenID() int32         { return 99 }
func (m *wordModel) Info() inference.ModelInfo { return inference.ModelInfo{Name: "words"} }

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "validation.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestPerplexity_ConstantLoss(t *testing.T) {
	path := writeCorpus(t, "the sun is bright\nwind power\n")
	result, err := Perplexity(newWordModel(), path, DefaultMaxLength)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, result.AverageLoss, 1e-12)
	assert.InDelta(t, math.Exp(2), result.Perplexity, 1e-9)
	assert.Equal(t, 2, result.Lines)
	assert.Equal(t, 6, result.Tokens)
}

func TestPerplexity_WeightedByTokens(t *testing.T) {
	lm := newWordModel()
	lm.tokenLoss = map[string]float64{"a": 1, "b": 3, "c": 5}

	split1, err := PerplexityOf(lm, []string{"a", "b c c b a"}, 0)
	require.NoError(t, err)
	split2, err := PerplexityOf(lm, []string{"a b c", "c b a"}, 0)
	require.NoError(t, err)

	// (1 + 3 + 5 + 5 + 3 + 1) / 6 = 3
	assert.InDelta(t, 3.0, split1.AverageLoss, 1e-12)
	assert.InDelta(t, split1.Perplexity, split2.Perplexity, 1e-9)

	// A line-count average would give (1 + 3.4) / 2 = 2.2 for split1.
	assert.NotEqual(t, 2.2, split1.AverageLoss)
}

func TestPerplexity_Truncation(t *testing.T) {
	lm := newWordModel()
	_, err := PerplexityOf(lm, []string{"one two three four five"}, 2)
	require.NoError(t, err)
	require.Len(t, lm.scored, 1)
	assert.Len(t, lm.scored[0], 2)
}

func TestPerplexity_LocalModelLongerThanContext(t *testing.T) {
	tok := must.M1(tokenizer.NewChar(tokenizer.PrintableASCII()))
	model := must.M1(tinygpt.New(tinygpt.Config{NEmbd: 8, NHead: 2, NLayer: 1, BlockSize: 4, VocabSize: tok.VocabSize()}, 3))
	lm := inference.NewLocal(model, tok)

	result, err := PerplexityOf(lm, []string{"abcdefghij", "ab"}, DefaultMaxLength)
	require.NoError(t, err)
	assert.Equal(t, 4+2, result.Tokens, "only the first block of the long line is scored")

	nll := func(text string) float64 {
		ids := must.M1(tok.Encode(text))
		return model.NLL(append([]int32{tok.BosToken()}, ids...))
	}
	want := (nll("abcd")*4 + nll("ab")*2) / 6
	assert.InDelta(t, want, result.AverageLoss, 1e-12)
	assert.InDelta(t, math.Exp(want), result.Perplexity, 1e-9)
}

func TestPerplexity_EmptyCorpus(t *testing.T) {
	for _, content := range []string{"", "\n\n", "   \n\t\n"} {
		result, err := Perplexity(newWordModel(), writeCorpus(t, content), DefaultMaxLength)
		require.NoError(t, err)
		assert.True(t, math.IsInf(result.Perplexity, 1))
		assert.False(t, BuildReport(result, nil, math.MaxFloat64).Passed)
	}

	_, err := PerplexityOf(newWordModel(), nil, 0)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestPerplexity_MissingFile(t *testing.T) {
	_, err := Perplexity(newWordModel(), filepath.Join(t.TempDir(), "absent.txt"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadCorpus(t *testing.T) {
	lines, err := ReadCorpus(writeCorpus(t, "\nfirst line\r\n\nsecond line\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first line", "second line"}, lines)
}

func TestRunSamples(t *testing.T) {
	lm := newWordModel()
	samples, err := RunSamples(lm, DefaultPrompts, SampleMaxLength, generate.SampleConfig(0))
	require.NoError(t, err)
	require.Len(t, samples, len(DefaultPrompts))
	for i, s := range samples {
		assert.Equal(t, DefaultPrompts[i], s.Prompt)
		assert.Equal(t, DefaultPrompts[i]+" more words", s.Response, "the response includes the prompt")
	}

	require.Len(t, lm.gotCfgs, 3)
	cfg := lm.gotCfgs[0]
	assert.True(t, cfg.DoSample)
	assert.Equal(t, float32(0.7), cfg.Temperature)
	assert.Equal(t, float32(0.9), cfg.TopP)
	assert.Equal(t, lm.EOSTokenID(), cfg.PadTokenID)
	assert.Equal(t, SampleMaxLength-6, cfg.MaxNewTokens)
}

func TestRunSamples_BudgetAtLeastOne(t *testing.T) {
	lm := newWordModel()
	_, err := RunSamples(lm, []string{"a b c d"}, 2, generate.SampleConfig(0))
	require.NoError(t, err)
	assert.Equal(t, 1, lm.gotCfgs[0].MaxNewTokens)
}

type failingModel struct{ *wordModel }

func (failingModel) Generate([]int32, generate.Config) ([]int32, error) {
	return nil, errors.New("boom")
}

func TestRunSamples_Error(t *testing.T) {
	_, err := RunSamples(failingModel{newWordModel()}, []string{"x"}, 10, generate.SampleConfig(0))
	assert.ErrorContains(t, err, "boom")
}

func TestBuildReport(t *testing.T) {
	tests := []struct {
		name       string
		perplexity float64
		threshold  float64
		want       bool
	}{
		{"below", 7.389, 10, true},
		{"equal passes", 1000, 1000, true},
		{"above", 1000.0001, 1000, false},
		{"infinite", math.Inf(1), math.Inf(1), false},
		{"nan", math.NaN(), 1000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := BuildReport(PerplexityResult{Perplexity: tt.perplexity}, nil, tt.threshold)
			assert.Equal(t, tt.want, r.Passed)
			assert.NotNil(t, r.Samples)
		})
	}
}

func TestReport_WriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evaluation_results.json")
	samples := []Sample{{Prompt: "p", Response: "p r"}}
	report := BuildReport(PerplexityResult{AverageLoss: 2, Perplexity: math.Exp(2)}, samples, 10)
	require.NoError(t, report.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 4)
	assert.InDelta(t, math.Exp(2), raw["perplexity"], 1e-9)
	assert.Equal(t, 10.0, raw["perplexity_threshold"])
	assert.Equal(t, true, raw["evaluation_passed"])
	assert.Equal(t, []any{map[string]any{"prompt": "p", "response": "p r"}}, raw["sample_generations"])

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, report, back)
}

func TestReport_InfinityJSON(t *testing.T) {
	report := BuildReport(Infinite(), nil, 1000)
	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"perplexity":"Infinity"`)
	assert.Contains(t, string(data), `"sample_generations":[]`)

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsInf(float64(back.Perplexity), 1))
}

func TestReport_Render(t *testing.T) {
	var buf bytes.Buffer
	report := BuildReport(PerplexityResult{Perplexity: 12.5}, []Sample{{Prompt: "hello", Response: "hello\nthere"}}, 10)
	require.NoError(t, report.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, "Prompt")
	assert.Contains(t, out, "hello there")
	assert.Contains(t, out, "Evaluation FAILED: Perplexity 12.5000 > 10")
}
