// Package tinygpt implements a tiny GPT-style decoder-only language model.
//
// The architecture is deliberately small: token and position embeddings,
// RMSNorm, multi-head causal self-attention, a ReLU MLP and a language-model
// head, with no biases and no learnable norm weights. Parameters are scalar
// autodiff values so the same weights serve two forward passes:
//
//   - Forward: plain float64 arithmetic over a KV cache, used for generation
//     and scoring. It implements generate.LLMModel.
//   - Loss: the autodiff graph of the mean next-token cross-entropy, used for training.
//
// A model directory holds config.json, tokenizer.json and model.safetensors.
package tinygpt

import "github.com/pkg/errors"

// Config holds the model hyperparameters. It is persisted as config.json.
type Config struct {
	NEmbd     int `json:"n_embd"`
	NHead     int `json:"n_head"`
	NLayer    int `json:"n_layer"`
	BlockSize int `json:"block_size"`
	VocabSize int `json:"vocab_size"`
}

// DefaultConfig returns the defaults of the demo model for the given vocabulary size.
func DefaultConfig(vocabSize int) Config {
	return Config{
		NEmbd:     16,
		NHead:     4,
		NLayer:    1,
		BlockSize: 64,
		VocabSize: vocabSize,
	}
}

// Validate checks that the hyperparameters describe a buildable model.
func (c Config) Validate() error {
	switch {
	case c.NEmbd <= 0 || c.NHead <= 0 || c.NLayer <= 0 || c.BlockSize <= 0:
		return errors.Errorf("invalid model config %+v: sizes must be positive", c)
	case c.NEmbd%c.NHead != 0:
		return errors.Errorf("n_embd=%d is not divisible by n_head=%d", c.NEmbd, c.NHead)
	case c.VocabSize < 2:
		return errors.Errorf("vocab_size=%d is too small", c.VocabSize)
	}
	return nil
}

func (c Config) headDim() int { return c.NEmbd / c.NHead }
