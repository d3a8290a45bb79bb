// Package serialization reads and writes model weights in the SafeTensors format.
//
// SafeTensors is the standard weight format of HuggingFace models:
//
//	Format Structure:
//	  [8 bytes: header size N (uint64 LE)]
//	  [N bytes: JSON header]
//	  [tensor data: raw little-endian bytes, tensors in alphabetical order]
//
// The header maps each tensor name to its dtype, shape and byte range inside the
// data section; the optional "__metadata__" entry holds string metadata.
//
// Weights are held in memory as float32 and stored either as F32 or, to halve
// the file size, as F16. The writer records a SHA-256 checksum of the data
// section under the "sha256" metadata key and the reader verifies it.
//
// Example usage:
//
//	tensors := map[string]serialization.Tensor{
//	    "wte": {Shape: []int{vocab, embd}, Data: weights},
//	}
//	err := serialization.WriteFile("model.safetensors", tensors, meta, serialization.F32)
//
//	file, err := serialization.ReadFile("model.safetensors", serialization.ReaderOptions{})
//	wte := file.Tensors["wte"]
package serialization
