// Package tokenizer provides text tokenization for the tiny language model.
//
// Two tokenizers implement the Tokenizer interface:
//   - TikToken: OpenAI BPE encodings (r50k_base is the GPT-2 encoding) with the
//     ids seen in a training corpus remapped onto a compact local vocabulary
//   - Char: one token per rune of a fixed alphabet
//
// Both reserve two special ids after the regular vocabulary: <unk> for text the
// vocabulary does not cover and <|endoftext|>, which doubles as the
// beginning-of-sequence and padding token the way GPT-2 uses it.
//
// The vocabulary is persisted as tokenizer.json next to the model weights:
//
//	tok, err := tokenizer.Build(tokenizer.ModeBPE, "r50k_base", lines)
//	if err != nil {
//	    return err
//	}
//	if err := tokenizer.Save(tok, filepath.Join(dir, tokenizer.FileName)); err != nil {
//	    return err
//	}
//
//	tok, err = tokenizer.Load(filepath.Join(dir, tokenizer.FileName))
package tokenizer
