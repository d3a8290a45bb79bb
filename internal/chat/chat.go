// Package chat turns a user prompt into a model reply: it assembles the prompt
// with the system prompt, runs generation and extracts the bot's answer.
package chat

import (
	"strings"

	"github.com/born-ml/tinychat/internal/generate"
	"github.com/born-ml/tinychat/internal/inference"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BotMarker precedes the reply in the combined text.
const BotMarker = "Bot:"

// Assemble combines the system prompt and the user input into the text fed to
// the model. Both are used verbatim.
func Assemble(systemPrompt, userInput string) string {
	return systemPrompt + "\nUser: " + userInput + "\n" + BotMarker
}

// Extract returns the text after the first "Bot:" marker, trimmed. Without a
// marker the whole text is returned trimmed.
func Extract(decoded string) string {
	if _, after, found := strings.Cut(decoded, BotMarker); found {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(decoded)
}

// GenerationError reports a failed generation request.
type GenerationError struct {
	Stage string // "tokenize", "generate" or "decode"
	Err   error
}

func (e *GenerationError) Error() string {
	return "generation failed at " + e.Stage + ": " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Sequence is the result of one generation call.
type Sequence struct {
	Input     []int32
	Generated []int32 // only the newly produced tokens
}

// Full returns the input followed by the generated tokens.
func (s Sequence) Full() []int32 {
	full := make([]int32, 0, len(s.Input)+len(s.Generated))
	return append(append(full, s.Input...), s.Generated...)
}

// Invoker runs the tokenize → generate steps against a language model.
type Invoker struct {
	lm inference.LanguageModel
}

// NewInvoker creates an Invoker for lm.
func NewInvoker(lm inference.LanguageModel) *Invoker {
	return &Invoker{lm: lm}
}

// Generate tokenizes text and generates a continuation. A negative
// config.PadTokenID is replaced by the end-of-text id.
func (iv *Invoker) Generate(text string, config generate.Config) (Sequence, error) {
	if config.MaxNewTokens <= 0 {
		return Sequence{}, &GenerationError{Stage: "generate", Err: errors.Wrapf(generate.ErrInvalidMaxTokens, "got %d", config.MaxNewTokens)}
	}
	input, err := iv.lm.Tokenize(text, 0)
	if err != nil {
		return Sequence{}, &GenerationError{Stage: "tokenize", Err: err}
	}
	if len(input) == 0 {
		return Sequence{}, &GenerationError{Stage: "tokenize", Err: generate.ErrEmptyInput}
	}
	if config.PadTokenID < 0 {
		config.PadTokenID = iv.lm.EOSTokenID()
	}
	generated, err := iv.lm.Generate(input, config)
	if err != nil {
		return Sequence{}, &GenerationError{Stage: "generate", Err: err}
	}
	return Sequence{Input: input, Generated: generated}, nil
}

// Decode converts the full sequence (input and new tokens) to text.
func (iv *Invoker) Decode(seq Sequence) (string, error) {
	text, err := iv.lm.Decode(seq.Full())
	if err != nil {
		return "", &GenerationError{Stage: "decode", Err: err}
	}
	return text, nil
}

// Pipeline answers prompts with the system prompt and model of a context.
type Pipeline struct {
	SystemPrompt string
	Invoker      *Invoker
	Config       generate.Config
}

// NewPipeline creates a pipeline over ctx using config for every request.
func NewPipeline(ctx *inference.Context, config generate.Config) *Pipeline {
	return &Pipeline{
		SystemPrompt: ctx.SystemPrompt,
		Invoker:      NewInvoker(ctx.Model),
		Config:       config,
	}
}

// Respond returns the model's reply to prompt.
func (p *Pipeline) Respond(prompt string) (string, error) {
	seq, err := p.Invoker.Generate(Assemble(p.SystemPrompt, prompt), p.Config)
	if err != nil {
		return "", err
	}
	decoded, err := p.Invoker.Decode(seq)
	if err != nil {
		return "", err
	}
	klog.V(1).Infof("chat: %d prompt tokens, %d new tokens", len(seq.Input), len(seq.Generated))
	return Extract(decoded), nil
}
