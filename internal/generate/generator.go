package generate

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Stop reasons reported in Result.
const (
	StopEOS       = "eos"
	StopMaxTokens = "max_tokens"
	StopContext   = "context"
)

// KVCache is the per-sequence attention state a model keeps between Forward calls.
type KVCache interface {
	// Clear drops all cached positions.
	Clear()

	// Len returns the number of cached positions.
	Len() int
}

// LLMModel is the interface for language models used in generation.
type LLMModel interface {
	// Forward feeds tokens at positions startPos.. and returns the logits
	// predicting the token after the last one.
	Forward(tokens []int32, cache KVCache, startPos int) []float32

	// NewCache returns an empty cache for one sequence.
	NewCache() KVCache

	// VocabSize returns the vocabulary size.
	VocabSize() int

	// ContextSize returns the maximum number of positions the model attends over.
	ContextSize() int
}

// Result holds the newly produced tokens of one generation.
type Result struct {
	// Tokens excludes the input and the token that stopped generation. Input
	// and Tokens together never exceed the model context.
	Tokens []int32
	Reason string
}

// Generator runs the decoding loop of an LLMModel.
type Generator struct {
	model LLMModel
	eos   int32
}

// NewGenerator creates a generator that stops at eosToken.
func NewGenerator(model LLMModel, eosToken int32) *Generator {
	return &Generator{model: model, eos: eosToken}
}

// Generate continues input with up to config.MaxNewTokens tokens.
//
// Generation stops early when the end-of-text token (or config.PadTokenID) is
// produced, or when the model context is full.
func (g *Generator) Generate(input []int32, config Config) (Result, error) {
	return g.GenerateWith(NewSampler(config), input, config)
}

// GenerateWith is Generate with a caller-owned sampler, which lets a sequence of
// calls share one random stream.
func (g *Generator) GenerateWith(sampler *Sampler, input []int32, config Config) (Result, error) {
	if len(input) == 0 {
		return Result{}, ErrEmptyInput
	}
	if config.MaxNewTokens <= 0 {
		return Result{}, errors.Wrapf(ErrInvalidMaxTokens, "got %d", config.MaxNewTokens)
	}
	contextSize := g.model.ContextSize()
	if len(input) >= contextSize {
		return Result{}, errors.Wrapf(ErrInputTooLong, "%d tokens, context holds %d", len(input), contextSize)
	}

	stop := g.eos
	if config.PadTokenID >= 0 {
		stop = config.PadTokenID
	}

	cache := g.model.NewCache()
	// Prefill: process the entire input.
	logits := g.model.Forward(input, cache, 0)
	history := append(make([]int32, 0, len(input)+config.MaxNewTokens), input...)
	result := Result{Tokens: make([]int32, 0, config.MaxNewTokens)}

	for pos := len(input); ; pos++ {
		next := sampler.Sample(logits, history)
		if next == stop || next == g.eos {
			result.Reason = StopEOS
			break
		}
		result.Tokens = append(result.Tokens, next)
		history = append(history, next)

		if len(result.Tokens) >= config.MaxNewTokens {
			result.Reason = StopMaxTokens
			break
		}
		if pos+1 >= contextSize {
			result.Reason = StopContext
			break
		}
		logits = g.model.Forward([]int32{next}, cache, pos)
	}
	klog.V(2).Infof("generate: %d input tokens, %d new, stop=%s", len(input), len(result.Tokens), result.Reason)
	return result, nil
}
