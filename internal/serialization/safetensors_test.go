package serialization

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTensors() map[string]Tensor {
	return map[string]Tensor{
		"wte":            {Shape: []int{3, 2}, Data: []float32{0.5, -1, 2, 0.25, -0.125, 3}},
		"layer0.attn_wq": {Shape: []int{2, 2}, Data: []float32{1, 0, 0, 1}},
		"scalar":         {Shape: []int{}, Data: []float32{7}},
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		dtype DType
		delta float64
	}{
		{"f32", F32, 0},
		{"f16", F16, 1e-3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.safetensors")
			meta := map[string]string{"format": "tinychat"}
			require.NoError(t, WriteFile(path, sampleTensors(), meta, tt.dtype))

			file, err := ReadFile(path, ReaderOptions{})
			require.NoError(t, err)
			assert.Equal(t, "tinychat", file.Metadata["format"])
			assert.Len(t, file.Metadata[MetadataChecksumKey], 64)
			require.Len(t, file.Tensors, 3)
			for name, want := range sampleTensors() {
				got := file.Tensors[name]
				assert.Equal(t, want.Shape, got.Shape, name)
				require.Len(t, got.Data, len(want.Data))
				for i := range want.Data {
					assert.InDelta(t, want.Data[i], got.Data[i], tt.delta, "%s[%d]", name, i)
				}
			}
		})
	}
}

func TestEncode_DataSectionAligned(t *testing.T) {
	content, err := Encode(sampleTensors(), nil, F32)
	require.NoError(t, err)
	headerSize := binary.LittleEndian.Uint64(content[:8])
	assert.Zero(t, headerSize%8)
	assert.Equal(t, uint64(len(content)-8)-headerSize, uint64(4*(6+4+1)))
}

func TestEncode_Errors(t *testing.T) {
	_, err := Encode(map[string]Tensor{"x": {Shape: []int{2, 2}, Data: []float32{1}}}, nil, F32)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Encode(map[string]Tensor{"../x": {Shape: []int{1}, Data: []float32{1}}}, nil, F32)
	assert.ErrorIs(t, err, ErrInvalidTensorName)

	_, err = Encode(sampleTensors(), nil, DType("BF16"))
	assert.Error(t, err)
}

func TestDecode_ChecksumMismatch(t *testing.T) {
	content, err := Encode(sampleTensors(), nil, F32)
	require.NoError(t, err)
	content[len(content)-1] ^= 0xff

	_, err = Decode(content, ReaderOptions{})
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, err = Decode(content, ReaderOptions{SkipChecksum: true})
	assert.NoError(t, err)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"too small", []byte{1, 2, 3}},
		{"header beyond file", func() []byte {
			b := make([]byte, 8)
			binary.LittleEndian.PutUint64(b, 1000)
			return b
		}()},
		{"bad json", func() []byte {
			b := make([]byte, 8, 12)
			binary.LittleEndian.PutUint64(b, 4)
			return append(b, []byte("{{{{")...)
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.content, ReaderOptions{})
			assert.Error(t, err)
		})
	}
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.safetensors"), ReaderOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseDType(t *testing.T) {
	for in, want := range map[string]DType{"f32": F32, "F16": F16, "float16": F16} {
		got, err := ParseDType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDType("bf16")
	assert.Error(t, err)
}
