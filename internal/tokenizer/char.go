package tokenizer

import (
	"sort"

	"github.com/pkg/errors"
)

// Char maps every rune of a fixed alphabet to its own token.
type Char struct {
	special
	chars []rune
	index map[rune]int32
}

// NewChar creates a character tokenizer over the given alphabet.
func NewChar(chars []rune) (*Char, error) {
	if len(chars) == 0 {
		return nil, errors.New("char tokenizer: empty alphabet")
	}
	index := make(map[rune]int32, len(chars))
	for i, r := range chars {
		if _, dup := index[r]; dup {
			return nil, errors.Errorf("char tokenizer: duplicate rune %q", r)
		}
		index[r] = int32(i) //nolint:gosec // alphabet size is bounded by the corpus
	}
	return &Char{
		special: newSpecial(len(chars)),
		chars:   append([]rune(nil), chars...),
		index:   index,
	}, nil
}

// BuildChar creates a character tokenizer over the runes that occur in corpus,
// sorted by code point.
func BuildChar(corpus []string) (*Char, error) {
	seen := make(map[rune]bool)
	for _, doc := range corpus {
		for _, r := range doc {
			seen[r] = true
		}
	}
	chars := make([]rune, 0, len(seen))
	for r := range seen {
		chars = append(chars, r)
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
	return NewChar(chars)
}

// PrintableASCII returns the runes from ' ' to '~' plus newline, the fallback
// alphabet when no corpus is available.
func PrintableASCII() []rune {
	chars := []rune{'\n'}
	for r := ' '; r <= '~'; r++ {
		chars = append(chars, r)
	}
	return chars
}

// Encode converts text to token IDs; runes outside the alphabet become <unk>.
func (c *Char) Encode(text string) ([]int32, error) {
	tokens := make([]int32, 0, len(text))
	for _, r := range text {
		if id, ok := c.index[r]; ok {
			tokens = append(tokens, id)
		} else {
			tokens = append(tokens, c.unk)
		}
	}
	return tokens, nil
}

// Decode converts token IDs back to text.
func (c *Char) Decode(tokens []int32) (string, error) {
	out := make([]rune, 0, len(tokens))
	for _, tok := range tokens {
		if tok >= 0 && int(tok) < len(c.chars) {
			out = append(out, c.chars[tok])
		}
	}
	return string(out), nil
}

// VocabSize returns the alphabet size plus the special tokens.
func (c *Char) VocabSize() int {
	return len(c.chars) + 2
}

// Spec returns the serializable vocabulary.
func (c *Char) Spec() Spec {
	chars := make([]string, len(c.chars))
	for i, r := range c.chars {
		chars[i] = string(r)
	}
	return Spec{Mode: ModeChar, Chars: chars}
}
