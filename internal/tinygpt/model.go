package tinygpt

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/born-ml/tinychat/internal/autodiff"
	"github.com/gomlx/exceptions"
)

// initStd is the standard deviation of the Gaussian weight initialization.
const initStd = 0.02

// matrix is a row-major [rows, cols] block of parameters.
type matrix struct {
	rows, cols int
	w          []*autodiff.Value
}

func newMatrix(rows, cols int, rng *rand.Rand) *matrix {
	m := &matrix{rows: rows, cols: cols, w: make([]*autodiff.Value, rows*cols)}
	for i := range m.w {
		m.w[i] = autodiff.New(rng.NormFloat64() * initStd)
	}
	return m
}

func (m *matrix) row(i int) []*autodiff.Value {
	return m.w[i*m.cols : (i+1)*m.cols]
}

// Model is a tiny GPT. Weights are shared between inference and training;
// a Model must not be used concurrently while it is being trained.
type Model struct {
	config  Config
	weights map[string]*matrix
	names   []string

	// checksum of the weights file the model was loaded from, if any.
	checksum string
}

// Parameter names.
const (
	nameWTE    = "wte"
	nameWPE    = "wpe"
	nameLMHead = "lm_head"
)

func layerName(layer int, part string) string {
	return fmt.Sprintf("layer%d.%s", layer, part)
}

// shapes returns the [rows, cols] of every parameter matrix.
func (c Config) shapes() map[string][2]int {
	s := map[string][2]int{
		nameWTE:    {c.VocabSize, c.NEmbd},
		nameWPE:    {c.BlockSize, c.NEmbd},
		nameLMHead: {c.VocabSize, c.NEmbd},
	}
	for l := 0; l < c.NLayer; l++ {
		s[layerName(l, "attn_wq")] = [2]int{c.NEmbd, c.NEmbd}
		s[layerName(l, "attn_wk")] = [2]int{c.NEmbd, c.NEmbd}
		s[layerName(l, "attn_wv")] = [2]int{c.NEmbd, c.NEmbd}
		s[layerName(l, "attn_wo")] = [2]int{c.NEmbd, c.NEmbd}
		s[layerName(l, "mlp_fc1")] = [2]int{4 * c.NEmbd, c.NEmbd}
		s[layerName(l, "mlp_fc2")] = [2]int{c.NEmbd, 4 * c.NEmbd}
	}
	return s
}

// New creates a model with freshly initialized weights drawn from seed.
func New(config Config, seed int64) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible initialization
	m := &Model{config: config, weights: make(map[string]*matrix)}
	shapes := config.shapes()
	for name := range shapes {
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)
	// Draw in name order so the same seed always gives the same weights.
	for _, name := range m.names {
		shape := shapes[name]
		m.weights[name] = newMatrix(shape[0], shape[1], rng)
	}
	return m, nil
}

// Config returns the model hyperparameters.
func (m *Model) Config() Config { return m.config }

// WeightsChecksum returns the SHA-256 recorded in the weights file the model was
// loaded from, or "" for a model that was never loaded.
func (m *Model) WeightsChecksum() string { return m.checksum }

// VocabSize implements generate.LLMModel.
func (m *Model) VocabSize() int { return m.config.VocabSize }

// ContextSize implements generate.LLMModel.
func (m *Model) ContextSize() int { return m.config.BlockSize }

// Parameters returns every trainable scalar in a stable order.
func (m *Model) Parameters() []*autodiff.Value {
	params := make([]*autodiff.Value, 0, m.NumParams())
	for _, name := range m.names {
		params = append(params, m.weights[name].w...)
	}
	return params
}

// NumParams returns the number of trainable scalars.
func (m *Model) NumParams() int {
	n := 0
	for _, w := range m.weights {
		n += len(w.w)
	}
	return n
}

func (m *Model) weight(name string) *matrix {
	w, ok := m.weights[name]
	if !ok {
		exceptions.Panicf("tinygpt: missing parameter %q", name)
	}
	return w
}
