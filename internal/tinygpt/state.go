package tinygpt

import (
	"slices"

	"github.com/born-ml/tinychat/internal/serialization"
	"github.com/pkg/errors"
)

// StateDict returns a float32 copy of every parameter matrix keyed by name.
func (m *Model) StateDict() map[string]serialization.Tensor {
	state := make(map[string]serialization.Tensor, len(m.weights))
	for name, w := range m.weights {
		data := make([]float32, len(w.w))
		for i, v := range w.w {
			data[i] = float32(v.Data)
		}
		state[name] = serialization.Tensor{Shape: []int{w.rows, w.cols}, Data: data}
	}
	return state
}

// LoadStateDict overwrites the parameters with state. Every parameter must be
// present with its exact shape; extra entries are rejected.
func (m *Model) LoadStateDict(state map[string]serialization.Tensor) error {
	for name := range state {
		if _, ok := m.weights[name]; !ok {
			return errors.Errorf("unexpected tensor %q in state", name)
		}
	}
	for _, name := range m.names {
		w := m.weights[name]
		t, ok := state[name]
		if !ok {
			return errors.Errorf("missing tensor %q in state", name)
		}
		if want := []int{w.rows, w.cols}; !slices.Equal(t.Shape, want) {
			return errors.Errorf("tensor %q has shape %v, model expects %v", name, t.Shape, want)
		}
		if len(t.Data) != len(w.w) {
			return errors.Errorf("tensor %q has %d values, model expects %d", name, len(t.Data), len(w.w))
		}
	}
	for _, name := range m.names {
		for i, v := range state[name].Data {
			m.weights[name].w[i].Data = float64(v)
		}
	}
	return nil
}
