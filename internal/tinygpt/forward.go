package tinygpt

import (
	"math"

	"github.com/born-ml/tinychat/internal/generate"
	"github.com/gomlx/exceptions"
)

const rmsEps = 1e-5

// KVCache holds the attention keys and values of the positions fed so far.
type KVCache struct {
	keys   [][][]float64 // [layer][position][n_embd]
	values [][][]float64
}

// Clear drops all cached positions.
func (c *KVCache) Clear() {
	for l := range c.keys {
		c.keys[l] = c.keys[l][:0]
		c.values[l] = c.values[l][:0]
	}
}

// Len returns the number of cached positions.
func (c *KVCache) Len() int {
	if len(c.keys) == 0 {
		return 0
	}
	return len(c.keys[0])
}

// NewCache implements generate.LLMModel.
func (m *Model) NewCache() generate.KVCache {
	return m.newCache()
}

func (m *Model) newCache() *KVCache {
	return &KVCache{
		keys:   make([][][]float64, m.config.NLayer),
		values: make([][][]float64, m.config.NLayer),
	}
}

// Forward implements generate.LLMModel: it feeds tokens at positions
// startPos.. and returns the logits that follow the last one.
//
// It panics (exceptions.Panicf) if the cache does not hold exactly startPos
// positions, a token id is outside the vocabulary or a position is beyond the block size.
func (m *Model) Forward(tokens []int32, cache generate.KVCache, startPos int) []float32 {
	kv, ok := cache.(*KVCache)
	if !ok {
		exceptions.Panicf("tinygpt: Forward needs a cache from NewCache, got %T", cache)
	}
	if kv.Len() != startPos {
		exceptions.Panicf("tinygpt: cache holds %d positions, Forward called at %d", kv.Len(), startPos)
	}
	if len(tokens) == 0 {
		exceptions.Panicf("tinygpt: Forward called with no tokens")
	}
	var logits []float64
	for i, tok := range tokens {
		logits = m.step(tok, startPos+i, kv)
	}
	out := make([]float32, len(logits))
	for i, v := range logits {
		out[i] = float32(v)
	}
	return out
}

func (m *Model) checkInput(token int32, pos int) {
	if token < 0 || int(token) >= m.config.VocabSize {
		exceptions.Panicf("tinygpt: token id %d outside vocabulary of %d", token, m.config.VocabSize)
	}
	if pos < 0 || pos >= m.config.BlockSize {
		exceptions.Panicf("tinygpt: position %d outside block size %d", pos, m.config.BlockSize)
	}
}

// step runs one position through the network and appends its keys and values to kv.
func (m *Model) step(token int32, pos int, kv *KVCache) []float64 {
	m.checkInput(token, pos)
	c := m.config
	hd := c.headDim()

	tok, wpe := m.weight(nameWTE).row(int(token)), m.weight(nameWPE).row(pos)
	x := make([]float64, c.NEmbd)
	for i := range x {
		x[i] = tok[i].Data + wpe[i].Data
	}
	x = rmsNorm(x)

	for l := 0; l < c.NLayer; l++ {
		residual := x
		x = rmsNorm(x)
		q := linear(x, m.weight(layerName(l, "attn_wq")))
		kv.keys[l] = append(kv.keys[l], linear(x, m.weight(layerName(l, "attn_wk"))))
		kv.values[l] = append(kv.values[l], linear(x, m.weight(layerName(l, "attn_wv"))))
		keys, values := kv.keys[l], kv.values[l]

		attn := make([]float64, 0, c.NEmbd)
		scale := 1 / math.Sqrt(float64(hd))
		for h := 0; h < c.NHead; h++ {
			hs := h * hd
			scores := make([]float64, len(keys))
			for t, k := range keys {
				var dot float64
				for j := 0; j < hd; j++ {
					dot += q[hs+j] * k[hs+j]
				}
				scores[t] = dot * scale
			}
			weights := softmax(scores)
			for j := 0; j < hd; j++ {
				var sum float64
				for t, v := range values {
					sum += weights[t] * v[hs+j]
				}
				attn = append(attn, sum)
			}
		}
		x = linear(attn, m.weight(layerName(l, "attn_wo")))
		addInPlace(x, residual)

		residual = x
		x = rmsNorm(x)
		x = linear(x, m.weight(layerName(l, "mlp_fc1")))
		for i := range x {
			x[i] = max(x[i], 0)
		}
		x = linear(x, m.weight(layerName(l, "mlp_fc2")))
		addInPlace(x, residual)
	}
	return linear(x, m.weight(nameLMHead))
}

// NLL returns the mean negative log-likelihood of tokens[1:] given their
// prefixes, computed without building an autodiff graph. At least two tokens are needed.
func (m *Model) NLL(tokens []int32) float64 {
	if len(tokens) < 2 {
		exceptions.Panicf("tinygpt: NLL needs at least 2 tokens, got %d", len(tokens))
	}
	kv := m.newCache()
	var total float64
	for pos := 0; pos < len(tokens)-1; pos++ {
		logits := m.step(tokens[pos], pos, kv)
		target := tokens[pos+1]
		if target < 0 || int(target) >= len(logits) {
			exceptions.Panicf("tinygpt: target id %d outside vocabulary of %d", target, len(logits))
		}
		total += logSumExp(logits) - logits[target]
	}
	return total / float64(len(tokens)-1)
}

func linear(x []float64, w *matrix) []float64 {
	out := make([]float64, w.rows)
	for i := range out {
		var sum float64
		for j, wij := range w.row(i) {
			sum += wij.Data * x[j]
		}
		out[i] = sum
	}
	return out
}

func rmsNorm(x []float64) []float64 {
	var ms float64
	for _, v := range x {
		ms += v * v
	}
	ms /= float64(len(x))
	scale := 1 / math.Sqrt(ms+rmsEps)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * scale
	}
	return out
}

func addInPlace(x, y []float64) {
	for i := range x {
		x[i] += y[i]
	}
}

func softmax(x []float64) []float64 {
	maxVal := math.Inf(-1)
	for _, v := range x {
		maxVal = max(maxVal, v)
	}
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		out[i] = math.Exp(v - maxVal)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func logSumExp(x []float64) float64 {
	maxVal := math.Inf(-1)
	for _, v := range x {
		maxVal = max(maxVal, v)
	}
	var sum float64
	for _, v := range x {
		sum += math.Exp(v - maxVal)
	}
	return maxVal + math.Log(sum)
}
