package tokenizer

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

const (
	// EncodingR50kBase is the GPT-2 encoding, the default for the tiny model.
	EncodingR50kBase = "r50k_base"
	// encodingP50kBase is the encoding name for GPT-3.
	encodingP50kBase = "p50k_base"
	// encodingCL100kBase is the encoding name for GPT-4 and GPT-3.5-turbo.
	encodingCL100kBase = "cl100k_base"
)

// encoder is the part of *tiktoken.Tiktoken the tokenizer relies on.
type encoder interface {
	EncodeOrdinary(text string) []int
	Decode(tokens []int) string
}

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI tokenizers.
//
// A full tiktoken vocabulary (50k to 100k entries) is far too large for the
// embedding table of a tiny model, so only the encoding ids listed at
// construction are kept. They are renumbered 0..n-1; any other id encodes to
// the <unk> token.
//
// Supported encodings:
//   - r50k_base: GPT-2, GPT-3 davinci
//   - p50k_base: GPT-3, Codex
//   - cl100k_base: GPT-4, GPT-3.5-turbo
type TikToken struct {
	special
	encoding encoder
	name     string
	toLocal  map[int]int32
	fromBPE  []int
}

// NewTikToken creates a TikToken tokenizer that keeps the given encoding ids.
func NewTikToken(encodingName string, bpeIDs []int) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load tiktoken encoding %q", encodingName)
	}
	return newTikToken(encoding, encodingName, bpeIDs)
}

// BuildTikToken creates a TikToken tokenizer whose vocabulary is every
// encoding id that occurs in corpus.
func BuildTikToken(encodingName string, corpus []string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load tiktoken encoding %q", encodingName)
	}
	return newTikToken(encoding, encodingName, collectIDs(encoding, corpus))
}

func collectIDs(enc encoder, corpus []string) []int {
	seen := make(map[int]bool)
	for _, doc := range corpus {
		for _, id := range enc.EncodeOrdinary(doc) {
			seen[id] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func newTikToken(enc encoder, name string, bpeIDs []int) (*TikToken, error) {
	if len(bpeIDs) == 0 {
		return nil, errors.Errorf("tiktoken %q: empty vocabulary", name)
	}
	toLocal := make(map[int]int32, len(bpeIDs))
	for i, id := range bpeIDs {
		if _, dup := toLocal[id]; dup {
			return nil, errors.Errorf("tiktoken %q: duplicate token id %d", name, id)
		}
		toLocal[id] = int32(i) //nolint:gosec // vocabulary size is bounded by the corpus
	}
	return &TikToken{
		special:  newSpecial(len(bpeIDs)),
		encoding: enc,
		name:     name,
		toLocal:  toLocal,
		fromBPE:  append([]int(nil), bpeIDs...),
	}, nil
}

// Encode converts text to local token IDs.
func (t *TikToken) Encode(text string) ([]int32, error) {
	raw := t.encoding.EncodeOrdinary(text)
	result := make([]int32, len(raw))
	for i, id := range raw {
		if local, ok := t.toLocal[id]; ok {
			result[i] = local
		} else {
			result[i] = t.unk
		}
	}
	return result, nil
}

// Decode converts local token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	raw := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		if tok >= 0 && int(tok) < len(t.fromBPE) {
			raw = append(raw, t.fromBPE[tok])
		}
	}
	return t.encoding.Decode(raw), nil
}

// VocabSize returns the local vocabulary size, special tokens included.
func (t *TikToken) VocabSize() int {
	return len(t.fromBPE) + 2
}

// Name returns the encoding name.
func (t *TikToken) Name() string {
	return t.name
}

// Spec returns the serializable vocabulary.
func (t *TikToken) Spec() Spec {
	return Spec{
		Mode:        ModeBPE,
		Encoding:    t.name,
		BPETokenIDs: append([]int(nil), t.fromBPE...),
	}
}
