package serialization

import (
	"fmt"
	"sort"
	"strings"
)

// Validation limits for resource protection.
const (
	MaxHeaderSize    = 100 * 1024 * 1024 // 100MB
	MaxTensorCount   = 100_000
	MaxTensorNameLen = 4096
)

// span is the byte range of one tensor inside the data section.
type span struct {
	name       string
	start, end int64
}

// validateOffsets checks for overlapping tensor offsets and out-of-bounds access.
func validateOffsets(tensors map[string]TensorInfo, dataSize int64) error {
	spans := make([]span, 0, len(tensors))
	for name, info := range tensors {
		start, end := info.DataOffsets[0], info.DataOffsets[1]
		if start < 0 || end < start {
			return &ValidationError{
				Kind:    ErrOutOfBounds,
				Tensor:  name,
				Details: fmt.Sprintf("invalid range [%d, %d)", start, end),
			}
		}
		if end > dataSize {
			return &ValidationError{
				Kind:    ErrOutOfBounds,
				Tensor:  name,
				Details: fmt.Sprintf("end %d > data size %d", end, dataSize),
			}
		}
		spans = append(spans, span{name: name, start: start, end: end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if prev.end > cur.start {
			return &ValidationError{
				Kind:    ErrOffsetOverlap,
				Tensor:  prev.name,
				Tensor2: cur.name,
				Details: fmt.Sprintf("regions [%d-%d] and [%d-%d] overlap", prev.start, prev.end, cur.start, cur.end),
			}
		}
	}
	return nil
}

// ValidateTensorName rejects names that are too long or carry path separators,
// traversal sequences or null bytes.
func ValidateTensorName(name string) error {
	switch {
	case name == "":
		return &ValidationError{Kind: ErrInvalidTensorName, Details: "empty name"}
	case len(name) > MaxTensorNameLen:
		return &ValidationError{
			Kind:    ErrInvalidTensorName,
			Tensor:  name[:32],
			Details: fmt.Sprintf("length %d > max %d", len(name), MaxTensorNameLen),
		}
	case strings.Contains(name, ".."):
		return &ValidationError{Kind: ErrInvalidTensorName, Tensor: name, Details: "contains '..'"}
	case strings.ContainsAny(name, "/\\"):
		return &ValidationError{Kind: ErrInvalidTensorName, Tensor: name, Details: "contains path separator"}
	case strings.Contains(name, "\x00"):
		return &ValidationError{Kind: ErrInvalidTensorName, Tensor: name, Details: "contains null byte"}
	}
	return nil
}

// ValidateHeader checks tensor count, names, dtypes, shapes and byte ranges.
func ValidateHeader(h *Header, dataSize int64) error {
	if len(h.Tensors) > MaxTensorCount {
		return &ValidationError{
			Kind:    ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(h.Tensors), MaxTensorCount),
		}
	}
	for name, info := range h.Tensors {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		size := info.DType.Size()
		if size == 0 {
			return &ValidationError{
				Kind:    ErrShapeMismatch,
				Tensor:  name,
				Details: fmt.Sprintf("unsupported dtype %q", info.DType),
			}
		}
		numel := int64(1)
		for _, d := range info.Shape {
			if d < 0 {
				return &ValidationError{Kind: ErrShapeMismatch, Tensor: name, Details: fmt.Sprintf("negative dimension in %v", info.Shape)}
			}
			numel *= int64(d)
		}
		if got := info.DataOffsets[1] - info.DataOffsets[0]; got != numel*int64(size) {
			return &ValidationError{
				Kind:    ErrShapeMismatch,
				Tensor:  name,
				Details: fmt.Sprintf("shape %v of %s needs %d bytes, range holds %d", info.Shape, info.DType, numel*int64(size), got),
			}
		}
	}
	return validateOffsets(h.Tensors, dataSize)
}
