package tinygpt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/tinychat/internal/atomicfile"
	"github.com/born-ml/tinychat/internal/serialization"
	"github.com/born-ml/tinychat/internal/tokenizer"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Files of a model directory.
const (
	ConfigFile  = "config.json"
	WeightsFile = "model.safetensors"
)

const formatName = "tinychat"

// Exists reports whether dir holds the three files of a model directory.
func Exists(dir string) bool {
	for _, name := range []string{ConfigFile, tokenizer.FileName, WeightsFile} {
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// Save writes config, vocabulary and weights of m to dir, creating it if needed.
func Save(dir string, m *Model, tok tokenizer.Tokenizer, dtype serialization.DType) error {
	if tok.VocabSize() != m.config.VocabSize {
		return errors.Errorf("tokenizer has %d tokens, model vocabulary is %d", tok.VocabSize(), m.config.VocabSize)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create model directory %q", dir)
	}
	configJSON, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal model config")
	}
	if err = atomicfile.WriteFile(filepath.Join(dir, ConfigFile), configJSON, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", ConfigFile)
	}
	if err = tokenizer.Save(tok, filepath.Join(dir, tokenizer.FileName)); err != nil {
		return err
	}
	metadata := map[string]string{
		"format":   formatName,
		"n_params": strconv.Itoa(m.NumParams()),
	}
	weightsPath := filepath.Join(dir, WeightsFile)
	if err = serialization.WriteFile(weightsPath, m.StateDict(), metadata, dtype); err != nil {
		return err
	}
	if info, statErr := os.Stat(weightsPath); statErr == nil {
		klog.Infof("Saved model to %s: %s parameters, %s weights (%s)",
			dir, humanize.Comma(int64(m.NumParams())), humanize.Bytes(uint64(info.Size())), dtype)
	}
	return nil
}

// Load reads a model directory written by Save.
func Load(dir string) (*Model, tokenizer.Tokenizer, error) {
	configJSON, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read model config in %q", dir)
	}
	var config Config
	if err = json.Unmarshal(configJSON, &config); err != nil {
		return nil, nil, errors.Wrapf(err, "failed to parse %s in %q", ConfigFile, dir)
	}
	tok, err := tokenizer.Load(filepath.Join(dir, tokenizer.FileName))
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "failed to load tokenizer from %q", dir)
	}
	if tok.VocabSize() != config.VocabSize {
		return nil, nil, errors.Errorf("tokenizer in %q has %d tokens, config says %d", dir, tok.VocabSize(), config.VocabSize)
	}
	m, err := New(config, 0)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "bad %s in %q", ConfigFile, dir)
	}
	file, err := serialization.ReadFile(filepath.Join(dir, WeightsFile), serialization.ReaderOptions{})
	if err != nil {
		return nil, nil, err
	}
	if format := file.Metadata["format"]; format != "" && format != formatName {
		klog.Warningf("Weights in %q declare format %q, expected %q", dir, format, formatName)
	}
	if err = m.LoadStateDict(file.Tensors); err != nil {
		return nil, nil, errors.WithMessagef(err, "weights in %q do not match %s", dir, ConfigFile)
	}
	m.checksum = file.Metadata[serialization.MetadataChecksumKey]
	klog.V(1).Infof("Loaded model from %s: %+v, %s parameters", dir, config, humanize.Comma(int64(m.NumParams())))
	return m, tok, nil
}
