package generate

import "github.com/pkg/errors"

// Errors returned by Generator.Generate.
var (
	ErrEmptyInput       = errors.New("input tokenized to zero tokens")
	ErrInvalidMaxTokens = errors.New("max new tokens must be positive")
	ErrInputTooLong     = errors.New("input does not fit in the model context")
)

// Config configures a single generation call.
type Config struct {
	// MaxNewTokens is the maximum number of tokens to produce, the input excluded.
	MaxNewTokens int

	// DoSample selects sampling. When false decoding is greedy and
	// Temperature, TopK, TopP and MinP are ignored.
	DoSample bool

	// Temperature controls randomness. 0 = greedy, 1 = normal, >1 = more random.
	Temperature float32

	// TopK limits sampling to top K tokens. 0 = disabled.
	TopK int

	// TopP (nucleus sampling) keeps the smallest set of tokens whose probability mass reaches P. 1.0 = disabled.
	TopP float32

	// MinP filters tokens with prob < max_prob * MinP. 0 = disabled.
	MinP float32

	// RepeatPenalty divides positive (multiplies negative) logits of tokens already
	// present in the last RepeatWindow tokens. 1.0 = no penalty.
	RepeatPenalty float32
	RepeatWindow  int

	// PadTokenID also stops generation when produced. -1 = use the end-of-text token.
	PadTokenID int32

	// Seed for reproducibility. -1 = random.
	Seed int64
}

// DefaultConfig returns the serving defaults: 50 new tokens, greedy.
func DefaultConfig() Config {
	return Config{
		MaxNewTokens:  50,
		DoSample:      false,
		Temperature:   1.0,
		TopK:          0,
		TopP:          1.0,
		MinP:          0.0,
		RepeatPenalty: 1.0,
		RepeatWindow:  64,
		PadTokenID:    -1,
		Seed:          -1,
	}
}

// SampleConfig returns the configuration used for sample responses:
// nucleus sampling with temperature 0.7 and top-p 0.9.
func SampleConfig(maxNewTokens int) Config {
	cfg := DefaultConfig()
	cfg.MaxNewTokens = maxNewTokens
	cfg.DoSample = true
	cfg.Temperature = 0.7
	cfg.TopP = 0.9
	return cfg
}

func (c Config) greedy() bool {
	return !c.DoSample || c.Temperature == 0
}
