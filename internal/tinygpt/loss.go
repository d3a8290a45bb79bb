package tinygpt

import (
	"math"

	"github.com/born-ml/tinychat/internal/autodiff"
	"github.com/gomlx/exceptions"
)

// Loss builds the autodiff graph of the mean cross-entropy of tokens[1:] given
// their prefixes. Calling autodiff.Backward on the result fills the gradients of
// Parameters. It agrees with NLL up to floating point rounding.
func (m *Model) Loss(tokens []int32) *autodiff.Value {
	n := len(tokens) - 1
	if n < 1 {
		exceptions.Panicf("tinygpt: Loss needs at least 2 tokens, got %d", len(tokens))
	}
	keys := make([][][]*autodiff.Value, m.config.NLayer)
	values := make([][][]*autodiff.Value, m.config.NLayer)
	losses := make([]*autodiff.Value, n)
	for pos := 0; pos < n; pos++ {
		logits := m.stepGraph(tokens[pos], pos, keys, values)
		target := tokens[pos+1]
		if target < 0 || int(target) >= len(logits) {
			exceptions.Panicf("tinygpt: target id %d outside vocabulary of %d", target, len(logits))
		}
		losses[pos] = autodiff.Sub(logSumExpGraph(logits), logits[target])
	}
	return autodiff.Scale(autodiff.Sum(losses), 1/float64(n))
}

// stepGraph mirrors step on autodiff values.
func (m *Model) stepGraph(token int32, pos int, keys, values [][][]*autodiff.Value) []*autodiff.Value {
	m.checkInput(token, pos)
	c := m.config
	hd := c.headDim()

	tok, wpe := m.weight(nameWTE).row(int(token)), m.weight(nameWPE).row(pos)
	x := make([]*autodiff.Value, c.NEmbd)
	for i := range x {
		x[i] = autodiff.Add(tok[i], wpe[i])
	}
	x = rmsNormGraph(x)

	scale := 1 / math.Sqrt(float64(hd))
	for l := 0; l < c.NLayer; l++ {
		residual := x
		x = rmsNormGraph(x)
		q := linearGraph(x, m.weight(layerName(l, "attn_wq")))
		keys[l] = append(keys[l], linearGraph(x, m.weight(layerName(l, "attn_wk"))))
		values[l] = append(values[l], linearGraph(x, m.weight(layerName(l, "attn_wv"))))

		attn := make([]*autodiff.Value, 0, c.NEmbd)
		for h := 0; h < c.NHead; h++ {
			hs := h * hd
			scores := make([]*autodiff.Value, len(keys[l]))
			for t, k := range keys[l] {
				scores[t] = autodiff.Scale(autodiff.Dot(q[hs:hs+hd], k[hs:hs+hd]), scale)
			}
			weights := softmaxGraph(scores)
			column := make([]*autodiff.Value, len(values[l]))
			for j := 0; j < hd; j++ {
				for t, v := range values[l] {
					column[t] = v[hs+j]
				}
				attn = append(attn, autodiff.Dot(weights, column))
			}
		}
		x = addGraph(linearGraph(attn, m.weight(layerName(l, "attn_wo"))), residual)

		residual = x
		x = linearGraph(rmsNormGraph(x), m.weight(layerName(l, "mlp_fc1")))
		for i := range x {
			x[i] = autodiff.ReLU(x[i])
		}
		x = addGraph(linearGraph(x, m.weight(layerName(l, "mlp_fc2"))), residual)
	}
	return linearGraph(x, m.weight(nameLMHead))
}

func linearGraph(x []*autodiff.Value, w *matrix) []*autodiff.Value {
	out := make([]*autodiff.Value, w.rows)
	for i := range out {
		out[i] = autodiff.Dot(w.row(i), x)
	}
	return out
}

func rmsNormGraph(x []*autodiff.Value) []*autodiff.Value {
	ms := autodiff.Scale(autodiff.Dot(x, x), 1/float64(len(x)))
	scale := autodiff.Pow(autodiff.Shift(ms, rmsEps), -0.5)
	out := make([]*autodiff.Value, len(x))
	for i, v := range x {
		out[i] = autodiff.Mul(v, scale)
	}
	return out
}

func addGraph(x, y []*autodiff.Value) []*autodiff.Value {
	for i := range x {
		x[i] = autodiff.Add(x[i], y[i])
	}
	return x
}

// softmaxGraph subtracts the maximum as a constant, which leaves the result
// and its gradient unchanged.
func softmaxGraph(x []*autodiff.Value) []*autodiff.Value {
	maxVal := math.Inf(-1)
	for _, v := range x {
		maxVal = max(maxVal, v.Data)
	}
	exps := make([]*autodiff.Value, len(x))
	for i, v := range x {
		exps[i] = autodiff.Exp(autodiff.Shift(v, -maxVal))
	}
	total := autodiff.Sum(exps)
	out := make([]*autodiff.Value, len(x))
	for i, e := range exps {
		out[i] = autodiff.Div(e, total)
	}
	return out
}

func logSumExpGraph(x []*autodiff.Value) *autodiff.Value {
	maxVal := math.Inf(-1)
	for _, v := range x {
		maxVal = max(maxVal, v.Data)
	}
	exps := make([]*autodiff.Value, len(x))
	for i, v := range x {
		exps[i] = autodiff.Exp(autodiff.Shift(v, -maxVal))
	}
	return autodiff.Shift(autodiff.Log(autodiff.Sum(exps)), maxVal)
}
