package serialization

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/born-ml/tinychat/internal/atomicfile"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Encode serializes tensors into SafeTensors bytes stored as dtype.
//
// Tensors are laid out in alphabetical order. The given metadata is copied and
// the SHA-256 of the data section is added under MetadataChecksumKey.
func Encode(tensors map[string]Tensor, metadata map[string]string, dtype DType) ([]byte, error) {
	if dtype.Size() == 0 {
		return nil, errors.Errorf("unsupported dtype %q", dtype)
	}
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		names = append(names, name)
	}
	sort.Strings(names)

	var data bytes.Buffer
	header := Header{
		Metadata: make(map[string]string, len(metadata)+1),
		Tensors:  make(map[string]TensorInfo, len(tensors)),
	}
	for k, v := range metadata {
		header.Metadata[k] = v
	}
	for _, name := range names {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		t := tensors[name]
		if t.NumElements() != len(t.Data) {
			return nil, &ValidationError{
				Kind:    ErrShapeMismatch,
				Tensor:  name,
				Details: fmt.Sprintf("shape %v has %d elements, data has %d", t.Shape, t.NumElements(), len(t.Data)),
			}
		}
		start := int64(data.Len())
		encodeData(&data, t.Data, dtype)
		header.Tensors[name] = TensorInfo{
			DType:       dtype,
			Shape:       append([]int{}, t.Shape...),
			DataOffsets: [2]int64{start, int64(data.Len())},
		}
	}
	header.Metadata[MetadataChecksumKey] = ComputeChecksum(data.Bytes())

	headerJSON, err := header.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal header")
	}
	// Pad the header with spaces so the data section starts 8-byte aligned.
	if pad := (8 - len(headerJSON)%8) % 8; pad > 0 {
		headerJSON = append(headerJSON, bytes.Repeat([]byte(" "), pad)...)
	}

	out := make([]byte, 8, 8+len(headerJSON)+data.Len())
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, data.Bytes()...)
	return out, nil
}

func encodeData(w io.Writer, values []float32, dtype DType) {
	buf := make([]byte, len(values)*dtype.Size())
	switch dtype {
	case F32:
		for i, v := range values {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
	case F16:
		for i, v := range values {
			binary.LittleEndian.PutUint16(buf[i*2:], float16.Fromfloat32(v).Bits())
		}
	}
	_, _ = w.Write(buf)
}

// WriteFile encodes tensors and writes them to path atomically.
func WriteFile(path string, tensors map[string]Tensor, metadata map[string]string, dtype DType) error {
	content, err := Encode(tensors, metadata, dtype)
	if err != nil {
		return errors.WithMessagef(err, "failed to encode %s", path)
	}
	return atomicfile.WriteFile(path, content, 0o644)
}
