package inference

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/born-ml/tinychat/internal/generate"
	"github.com/born-ml/tinychat/internal/serialization"
	"github.com/born-ml/tinychat/internal/tinygpt"
	"github.com/born-ml/tinychat/internal/tokenizer"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T) (*tinygpt.Model, tokenizer.Tokenizer) {
	t.Helper()
	tok := must.M1(tokenizer.NewChar(tokenizer.PrintableASCII()))
	cfg := tinygpt.Config{NEmbd: 8, NHead: 2, NLayer: 1, BlockSize: 24, VocabSize: tok.VocabSize()}
	return must.M1(tinygpt.New(cfg, 42)), tok
}

func greedy(maxNew int) generate.Config {
	cfg := generate.DefaultConfig()
	cfg.MaxNewTokens = maxNew
	return cfg
}

func TestLocal_Tokenize(t *testing.T) {
	lm := NewLocal(newTestModel(t))
	ids, err := lm.Tokenize("hello world", 0)
	require.NoError(t, err)
	assert.Len(t, ids, 11)

	ids, err = lm.Tokenize("hello world", 4)
	require.NoError(t, err)
	assert.Equal(t, "hell", must.M1(lm.Decode(ids)))
}

func TestLocal_GenerateReturnsNewTokensOnly(t *testing.T) {
	lm := NewLocal(newTestModel(t))
	input := must.M1(lm.Tokenize("User: hi\nBot:", 0))

	first, err := lm.Generate(input, greedy(5))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(first), 5)
	for _, id := range first {
		assert.NotEqual(t, lm.EOSTokenID(), id)
	}

	second, err := lm.Generate(input, greedy(5))
	require.NoError(t, err)
	assert.Equal(t, first, second, "greedy decoding is deterministic")
}

func TestLocal_GenerateErrors(t *testing.T) {
	lm := NewLocal(newTestModel(t))

	_, err := lm.Generate(nil, greedy(5))
	assert.ErrorIs(t, err, generate.ErrEmptyInput)

	_, err = lm.Generate([]int32{1}, greedy(0))
	assert.ErrorIs(t, err, generate.ErrInvalidMaxTokens)

	_, err = lm.Generate([]int32{100000}, greedy(2))
	assert.Error(t, err, "out-of-vocabulary ids surface as errors")
}

func TestLocal_GenerateTruncatesLongInput(t *testing.T) {
	lm := NewLocal(newTestModel(t))
	input := must.M1(lm.Tokenize("a prompt that is much longer than the block size", 0))
	require.Greater(t, len(input), 24)

	out, err := lm.Generate(input, greedy(3))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), 1, "the kept prompt leaves room for one token")
}

func TestLocal_ScoreSequence(t *testing.T) {
	model, tok := newTestModel(t)
	lm := NewLocal(model, tok)
	ids := must.M1(lm.Tokenize("the cat", 0))
	before := model.StateDict()

	loss, scored, err := lm.ScoreSequence(ids)
	require.NoError(t, err)
	want := model.NLL(append([]int32{tok.BosToken()}, ids...))
	assert.InDelta(t, want, loss, 1e-12)
	assert.Equal(t, len(ids), scored)
	assert.Equal(t, before, model.StateDict(), "scoring never changes parameters")

	_, _, err = lm.ScoreSequence(nil)
	assert.Error(t, err)

	long := make([]int32, 100)
	loss, scored, err = lm.ScoreSequence(long)
	require.NoError(t, err)
	assert.Equal(t, model.ContextSize(), scored, "only the first block is scored")
	assert.InDelta(t, model.NLL(append([]int32{tok.BosToken()}, long[:scored]...)), loss, 1e-12)
}

func TestLocal_ConcurrentCalls(t *testing.T) {
	lm := NewLocal(newTestModel(t))
	input := must.M1(lm.Tokenize("Bot:", 0))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cfg := generate.SampleConfig(4)
			_, err := lm.Generate(input, cfg)
			assert.NoError(t, err)
			_, _, err = lm.ScoreSequence(input)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestLocal_Info(t *testing.T) {
	model, tok := newTestModel(t)
	info := NewLocal(model, tok).Info()
	assert.Equal(t, ModelName, info.Name)
	assert.Equal(t, "untrained", info.Version)
	assert.Equal(t, model.NumParams(), info.Params)

	dir := t.TempDir()
	require.NoError(t, tinygpt.Save(dir, model, tok, serialization.F32))
	lm, err := LoadLocal(dir)
	require.NoError(t, err)
	assert.Len(t, lm.Info().Version, versionLen)
}

func TestLoadContext(t *testing.T) {
	model, tok := newTestModel(t)
	modelDir := t.TempDir()
	require.NoError(t, tinygpt.Save(modelDir, model, tok, serialization.F32))
	promptPath := filepath.Join(t.TempDir(), "system_prompt.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("  You are a helpful bot.\n\n"), 0o600))

	ctx, err := LoadContext(promptPath, modelDir)
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful bot.", ctx.SystemPrompt)
	assert.Equal(t, ModelName, ctx.Model.Info().Name)

	tests := []struct {
		name         string
		promptPath   string
		modelDir     string
		wantResource string
	}{
		{"missing system prompt", filepath.Join(t.TempDir(), "absent.txt"), modelDir, "system prompt"},
		{"missing model", promptPath, filepath.Join(t.TempDir(), "absent"), "model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadContext(tt.promptPath, tt.modelDir)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantResource, cfgErr.Resource)
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	}
}
