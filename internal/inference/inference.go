// Package inference defines the language-model boundary of the chat service and
// the process-wide context shared by request handlers.
//
// Everything above this package (chat pipeline, evaluation, HTTP server) talks to
// a LanguageModel. Local adapts the native tinygpt runtime to it; tests use stubs.
package inference

import (
	"github.com/born-ml/tinychat/internal/generate"
)

// ModelInfo identifies the loaded model.
type ModelInfo struct {
	Name    string
	Version string
	Params  int
}

// LanguageModel is the "encode → generate → decode" and "score" surface of a
// causal language model.
type LanguageModel interface {
	// Tokenize encodes text, keeping at most maxLength tokens when maxLength > 0.
	Tokenize(text string, maxLength int) ([]int32, error)

	// Generate continues input and returns only the newly produced tokens.
	Generate(input []int32, config generate.Config) ([]int32, error)

	// Decode converts tokens back to text, skipping special tokens.
	Decode(tokens []int32) (string, error)

	// ScoreSequence returns the mean negative log-likelihood of each token of
	// tokens given the ones before it, and how many tokens that mean covers: a
	// model may score only a prefix of a sequence longer than its context. It
	// never changes model parameters.
	ScoreSequence(tokens []int32) (loss float64, scored int, err error)

	// EOSTokenID returns the end-of-text token id.
	EOSTokenID() int32

	// Info describes the model.
	Info() ModelInfo
}
