package serialization

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// ReaderOptions configures Decode and ReadFile.
type ReaderOptions struct {
	// SkipChecksum disables verification of the "sha256" metadata entry.
	SkipChecksum bool
}

// File is a decoded SafeTensors file.
type File struct {
	Metadata map[string]string
	Tensors  map[string]Tensor
}

// Decode parses SafeTensors bytes, converting every tensor to float32.
//
// Files without a checksum entry are accepted; a present checksum that does not
// match the data section yields ErrChecksumMismatch.
func Decode(content []byte, opts ReaderOptions) (*File, error) {
	if len(content) < 8 {
		return nil, errors.Errorf("file too small: %d bytes", len(content))
	}
	headerSize := binary.LittleEndian.Uint64(content[:8])
	if headerSize > MaxHeaderSize {
		return nil, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}
	if uint64(len(content)-8) < headerSize {
		return nil, errors.Errorf("header size %d exceeds file size %d", headerSize, len(content))
	}

	var header Header
	if err := json.Unmarshal(content[8:8+headerSize], &header); err != nil {
		return nil, errors.Wrap(err, "failed to parse header JSON")
	}
	data := content[8+headerSize:]
	if err := ValidateHeader(&header, int64(len(data))); err != nil {
		return nil, err
	}
	if sum, ok := header.Metadata[MetadataChecksumKey]; ok && !opts.SkipChecksum {
		if err := ValidateChecksum(data, sum); err != nil {
			return nil, err
		}
	}

	file := &File{
		Metadata: header.Metadata,
		Tensors:  make(map[string]Tensor, len(header.Tensors)),
	}
	if file.Metadata == nil {
		file.Metadata = map[string]string{}
	}
	for name, info := range header.Tensors {
		raw := data[info.DataOffsets[0]:info.DataOffsets[1]]
		file.Tensors[name] = Tensor{
			Shape: append([]int{}, info.Shape...),
			Data:  decodeData(raw, info.DType),
		}
	}
	return file, nil
}

func decodeData(raw []byte, dtype DType) []float32 {
	n := len(raw) / dtype.Size()
	values := make([]float32, n)
	switch dtype {
	case F32:
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case F16:
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	}
	return values
}

// ReadFile reads and decodes the SafeTensors file at path.
func ReadFile(path string, opts ReaderOptions) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	file, err := Decode(content, opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid safetensors file %s", path)
	}
	return file, nil
}
