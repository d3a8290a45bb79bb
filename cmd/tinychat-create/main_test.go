package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/born-ml/tinychat/internal/serialization"
	"github.com/born-ml/tinychat/internal/tinygpt"
	"github.com/born-ml/tinychat/internal/tokenizer"
	"github.com/born-ml/tinychat/internal/train"
	"github.com/born-ml/tinychat/internal/transfer"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore pretends to be a bucket. A fetch "succeeds" by copying the model
// directory in from, when set.
type fakeStore struct {
	from    string
	fetched int
	pushed  []string
	pushErr error
}

func (s *fakeStore) Fetch(_ context.Context, _, local string) bool {
	s.fetched++
	if s.from == "" {
		return false
	}
	for _, name := range []string{tinygpt.ConfigFile, tokenizer.FileName, tinygpt.WeightsFile} {
		data := must.M1(os.ReadFile(filepath.Join(s.from, name)))
		must.M(os.WriteFile(filepath.Join(local, name), data, 0o644))
	}
	return true
}

func (s *fakeStore) Push(_ context.Context, local, remote string) error {
	s.pushed = append(s.pushed, local+" -> "+remote)
	return s.pushErr
}

func testOptions(t *testing.T) options {
	t.Helper()
	dir := t.TempDir()
	data := filepath.Join(dir, "train.txt")
	require.NoError(t, os.WriteFile(data, []byte("wind power\nsolar power\n"), 0o644))
	trainConfig := train.DefaultConfig()
	trainConfig.Epochs = 2
	trainConfig.BatchSize = 2
	return options{
		DataFile:  data,
		ModelDir:  filepath.Join(dir, "model"),
		Tokenizer: tokenizer.ModeChar,
		Model:     tinygpt.Config{NEmbd: 8, NHead: 2, NLayer: 1, BlockSize: 16},
		DType:     serialization.F32,
		Training:  trainConfig,
	}
}

func TestCreate_TrainsAndSaves(t *testing.T) {
	opts := testOptions(t)
	opts.Train = true
	opts.LossPlot = filepath.Join(t.TempDir(), "loss.png")
	require.NoError(t, create(context.Background(), opts, &fakeStore{}))

	assert.True(t, tinygpt.Exists(opts.ModelDir))
	m, tok, err := tinygpt.Load(opts.ModelDir)
	require.NoError(t, err)
	assert.Equal(t, tok.VocabSize(), m.Config().VocabSize)
	assert.FileExists(t, opts.LossPlot)
}

func TestCreate_NoDataFile(t *testing.T) {
	opts := testOptions(t)
	opts.DataFile = filepath.Join(t.TempDir(), "missing.txt")
	require.NoError(t, create(context.Background(), opts, &fakeStore{}))
	_, tok, err := tinygpt.Load(opts.ModelDir)
	require.NoError(t, err)
	assert.Equal(t, tokenizer.ModeChar, tok.Spec().Mode)

	opts.Train = true
	assert.Error(t, create(context.Background(), opts, &fakeStore{}))
}

func TestCreate_RemoteModel(t *testing.T) {
	source := testOptions(t)
	require.NoError(t, create(context.Background(), source, &fakeStore{}))

	opts := testOptions(t)
	opts.Train = true
	opts.GCSPath = "gs://bucket/tiny-llm-model"
	store := &fakeStore{from: source.ModelDir}
	require.NoError(t, create(context.Background(), opts, store))
	assert.Equal(t, 1, store.fetched)
	assert.Empty(t, store.pushed, "a fetched model is not pushed back")
	assert.True(t, tinygpt.Exists(opts.ModelDir))
}

func TestCreate_ForceTrainSkipsFetchAndPushes(t *testing.T) {
	opts := testOptions(t)
	opts.ForceTrain = true
	opts.GCSPath = "gs://bucket/tiny-llm-model"
	store := &fakeStore{pushErr: &transfer.Error{Op: "push", Err: os.ErrPermission}}
	require.NoError(t, create(context.Background(), opts, store), "a failed upload is not fatal")
	assert.Zero(t, store.fetched)
	assert.Equal(t, []string{opts.ModelDir + " -> gs://bucket/tiny-llm-model"}, store.pushed)
}

func TestCreate_MissingRemoteModel(t *testing.T) {
	opts := testOptions(t)
	opts.GCSPath = "gs://bucket/absent"
	store := &fakeStore{}
	require.NoError(t, create(context.Background(), opts, store))
	assert.Equal(t, 1, store.fetched)
	assert.Len(t, store.pushed, 1)
	assert.True(t, tinygpt.Exists(opts.ModelDir))
}
