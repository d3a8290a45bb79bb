package inference

import (
	"sync"

	"github.com/born-ml/tinychat/internal/generate"
	"github.com/born-ml/tinychat/internal/tinygpt"
	"github.com/born-ml/tinychat/internal/tokenizer"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ModelName is reported in ModelInfo for models served by Local.
const ModelName = "tinygpt"

// versionLen is the number of checksum characters used as the model version.
const versionLen = 12

// Local runs a tinygpt model in-process.
//
// Calls are serialized: one forward pass runs at a time.
type Local struct {
	mu        sync.Mutex
	model     *tinygpt.Model
	tokenizer tokenizer.Tokenizer
	generator *generate.Generator
	info      ModelInfo
}

var _ LanguageModel = (*Local)(nil)

// NewLocal wraps a model and the tokenizer of its vocabulary.
func NewLocal(model *tinygpt.Model, tok tokenizer.Tokenizer) *Local {
	version := model.WeightsChecksum()
	if len(version) > versionLen {
		version = version[:versionLen]
	}
	if version == "" {
		version = "untrained"
	}
	return &Local{
		model:     model,
		tokenizer: tok,
		generator: generate.NewGenerator(model, tok.EosToken()),
		info:      ModelInfo{Name: ModelName, Version: version, Params: model.NumParams()},
	}
}

// LoadLocal loads the model directory at dir.
func LoadLocal(dir string) (*Local, error) {
	model, tok, err := tinygpt.Load(dir)
	if err != nil {
		return nil, err
	}
	return NewLocal(model, tok), nil
}

// Tokenize implements LanguageModel.
func (l *Local) Tokenize(text string, maxLength int) ([]int32, error) {
	ids, err := l.tokenizer.Encode(text)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to tokenize")
	}
	if maxLength > 0 && len(ids) > maxLength {
		ids = ids[:maxLength]
	}
	return ids, nil
}

// Generate implements LanguageModel. Inputs longer than the model context keep
// their last tokens, leaving room for at least one new token.
func (l *Local) Generate(input []int32, config generate.Config) ([]int32, error) {
	if limit := l.model.ContextSize() - 1; len(input) > limit {
		klog.V(1).Infof("Prompt of %d tokens truncated to the last %d", len(input), limit)
		input = input[len(input)-limit:]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var (
		res    generate.Result
		genErr error
	)
	if err := exceptions.TryCatch[error](func() {
		res, genErr = l.generator.Generate(input, config)
	}); err != nil {
		return nil, errors.WithMessage(err, "model failed during generation")
	}
	return res.Tokens, genErr
}

// Decode implements LanguageModel.
func (l *Local) Decode(tokens []int32) (string, error) {
	return l.tokenizer.Decode(tokens)
}

// ScoreSequence implements LanguageModel. The sequence is scored after the
// beginning-of-text token, so every token of it is predicted; only the first
// ContextSize tokens of a longer sequence are scored.
func (l *Local) ScoreSequence(tokens []int32) (loss float64, scored int, err error) {
	if len(tokens) == 0 {
		return 0, 0, errors.New("cannot score an empty sequence")
	}
	if limit := l.model.ContextSize(); len(tokens) > limit {
		klog.V(1).Infof("Scoring the first %d of %d tokens", limit, len(tokens))
		tokens = tokens[:limit]
	}
	seq := make([]int32, 0, len(tokens)+1)
	seq = append(seq, l.tokenizer.BosToken())
	seq = append(seq, tokens...)

	l.mu.Lock()
	defer l.mu.Unlock()
	err = exceptions.TryCatch[error](func() {
		loss = l.model.NLL(seq)
	})
	if err != nil {
		return 0, 0, err
	}
	return loss, len(tokens), nil
}

// EOSTokenID implements LanguageModel.
func (l *Local) EOSTokenID() int32 {
	return l.tokenizer.EosToken()
}

// Info implements LanguageModel.
func (l *Local) Info() ModelInfo {
	return l.info
}
