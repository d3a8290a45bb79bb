package tokenizer

// Tokenizer is the core interface for text tokenization.
//
// All tokenizer implementations must implement this interface.
type Tokenizer interface {
	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text. Special tokens are skipped.
	Decode(tokens []int32) (string, error)

	// VocabSize returns the total vocabulary size, special tokens included.
	VocabSize() int

	// BosToken returns the beginning-of-sequence token ID.
	BosToken() int32

	// EosToken returns the end-of-sequence token ID.
	EosToken() int32

	// PadToken returns the padding token ID.
	// Returns -1 if not applicable.
	PadToken() int32

	// UnkToken returns the unknown token ID.
	UnkToken() int32

	// IsSpecialToken checks if a token ID is a special token.
	IsSpecialToken(token int32) bool

	// Spec returns the serializable description of the vocabulary.
	Spec() Spec
}

// Mode selects the tokenizer implementation.
type Mode string

const (
	// ModeBPE runs a tiktoken encoding and remaps its ids onto a local vocabulary.
	ModeBPE Mode = "bpe"

	// ModeChar uses one token per rune.
	ModeChar Mode = "char"
)

// special holds the two ids every tokenizer reserves after its regular vocabulary.
type special struct {
	unk int32
	eos int32
}

func newSpecial(regular int) special {
	return special{
		unk: int32(regular),     //nolint:gosec // vocabulary size is bounded by the corpus
		eos: int32(regular + 1), //nolint:gosec // vocabulary size is bounded by the corpus
	}
}

func (s special) BosToken() int32 { return s.eos }
func (s special) EosToken() int32 { return s.eos }
func (s special) PadToken() int32 { return -1 }
func (s special) UnkToken() int32 { return s.unk }

func (s special) IsSpecialToken(token int32) bool {
	return token == s.unk || token == s.eos
}
