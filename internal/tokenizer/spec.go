package tokenizer

import (
	"encoding/json"
	"os"
	"unicode/utf8"

	"github.com/born-ml/tinychat/internal/atomicfile"
	"github.com/pkg/errors"
)

// FileName is the name of the vocabulary file inside a model directory.
const FileName = "tokenizer.json"

// Spec is the on-disk description of a tokenizer vocabulary.
type Spec struct {
	Mode        Mode     `json:"mode"`
	Encoding    string   `json:"encoding,omitempty"`
	BPETokenIDs []int    `json:"bpe_token_ids,omitempty"`
	Chars       []string `json:"chars,omitempty"`
}

// KnownEncoding reports whether name is a tiktoken encoding this package accepts.
func KnownEncoding(name string) bool {
	switch name {
	case EncodingR50kBase, encodingP50kBase, encodingCL100kBase:
		return true
	}
	return false
}

// FromSpec recreates the tokenizer described by spec.
func FromSpec(spec Spec) (Tokenizer, error) {
	switch spec.Mode {
	case ModeBPE:
		encoding := spec.Encoding
		if encoding == "" {
			encoding = EncodingR50kBase
		}
		return NewTikToken(encoding, spec.BPETokenIDs)
	case ModeChar:
		chars := make([]rune, len(spec.Chars))
		for i, s := range spec.Chars {
			r, size := utf8.DecodeRuneInString(s)
			if r == utf8.RuneError || size != len(s) {
				return nil, errors.Errorf("invalid vocab entry %q: expected one rune", s)
			}
			chars[i] = r
		}
		return NewChar(chars)
	default:
		return nil, errors.Errorf("unknown tokenizer mode %q", spec.Mode)
	}
}

// Build creates a tokenizer of the given mode whose vocabulary covers corpus.
// An empty corpus yields a character tokenizer over printable ASCII.
func Build(mode Mode, encoding string, corpus []string) (Tokenizer, error) {
	if len(corpus) == 0 {
		return NewChar(PrintableASCII())
	}
	switch mode {
	case ModeBPE:
		if !KnownEncoding(encoding) {
			return nil, errors.Errorf("unsupported tiktoken encoding %q", encoding)
		}
		return BuildTikToken(encoding, corpus)
	case ModeChar:
		return BuildChar(corpus)
	default:
		return nil, errors.Errorf("unknown tokenizer mode %q", mode)
	}
}

// Save writes the vocabulary of tok to path as JSON.
func Save(tok Tokenizer, path string) error {
	data, err := json.MarshalIndent(tok.Spec(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal tokenizer spec")
	}
	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %q", path)
	}
	return nil
}

// Load reads a vocabulary written by Save and recreates the tokenizer.
func Load(path string) (Tokenizer, error) {
	//nolint:gosec // Loading tokenizer from user-specified path is intentional.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %q", path)
	}
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q", path)
	}
	return FromSpec(spec)
}
