// Package generate implements autoregressive decoding for causal language models:
// token sampling strategies and the generation loop.
package generate

import (
	"math"
	"math/rand"
	"sort"
)

// Sampler picks the next token from logits using configurable strategies.
//
// A Sampler owns its random source and is not safe for concurrent use.
type Sampler struct {
	config Config
	rng    *rand.Rand
}

// NewSampler creates a sampler for config. A negative seed draws a random one.
func NewSampler(config Config) *Sampler {
	seed := config.Seed
	if seed < 0 {
		seed = rand.Int63() //nolint:gosec // sampling does not need a secure source
	}
	return &Sampler{
		config: config,
		rng:    rand.New(rand.NewSource(seed)), //nolint:gosec // deterministic seed for reproducibility
	}
}

// Sample returns the next token ID.
//
// The steps are:
//  1. Repetition penalty over previousTokens
//  2. Argmax when decoding greedily
//  3. Temperature scaling
//  4. Top-K, Top-P and Min-P filtering
//  5. Multinomial draw from the softmax
func (s *Sampler) Sample(logits []float32, previousTokens []int32) int32 {
	logits = append([]float32{}, logits...)

	if s.config.RepeatPenalty > 0 && s.config.RepeatPenalty != 1.0 && len(previousTokens) > 0 {
		s.applyRepetitionPenalty(logits, previousTokens)
	}
	if s.config.greedy() {
		return argmax(logits)
	}

	if s.config.Temperature != 1.0 {
		for i := range logits {
			logits[i] /= s.config.Temperature
		}
	}
	if s.config.TopK > 0 && s.config.TopK < len(logits) {
		s.topKFilter(logits)
	}
	if s.config.TopP > 0 && s.config.TopP < 1.0 {
		s.topPFilter(logits)
	}
	if s.config.MinP > 0 {
		s.minPFilter(logits)
	}
	return s.multinomial(softmax(logits))
}

func argmax(logits []float32) int32 {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	return int32(best) //nolint:gosec // vocab size is bounded by model architecture
}

func (s *Sampler) applyRepetitionPenalty(logits []float32, prev []int32) {
	if w := s.config.RepeatWindow; w > 0 && len(prev) > w {
		prev = prev[len(prev)-w:]
	}
	seen := make(map[int32]bool, len(prev))
	for _, tok := range prev {
		if seen[tok] || tok < 0 || int(tok) >= len(logits) {
			continue
		}
		seen[tok] = true
		if logits[tok] > 0 {
			logits[tok] /= s.config.RepeatPenalty
		} else {
			logits[tok] *= s.config.RepeatPenalty
		}
	}
}

// topKFilter sets every logit below the k-th largest to -inf.
func (s *Sampler) topKFilter(logits []float32) {
	sorted := append([]float32{}, logits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	threshold := sorted[s.config.TopK-1]
	for i := range logits {
		if logits[i] < threshold {
			logits[i] = float32(math.Inf(-1))
		}
	}
}

// topPFilter keeps the most probable tokens until their cumulative probability
// reaches TopP. The most probable token always survives.
func (s *Sampler) topPFilter(logits []float32) {
	probs := softmax(logits)
	order := make([]int, len(probs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return probs[order[a]] > probs[order[b]] })

	var cum float32
	keep := len(order)
	for rank, idx := range order {
		cum += probs[idx]
		if cum >= s.config.TopP {
			keep = rank + 1
			break
		}
	}
	for _, idx := range order[keep:] {
		logits[idx] = float32(math.Inf(-1))
	}
}

// minPFilter keeps tokens with prob >= max_prob * MinP.
func (s *Sampler) minPFilter(logits []float32) {
	probs := softmax(logits)
	var maxProb float32
	for _, p := range probs {
		maxProb = max(maxProb, p)
	}
	threshold := maxProb * s.config.MinP
	for i := range logits {
		if probs[i] < threshold {
			logits[i] = float32(math.Inf(-1))
		}
	}
}

// multinomial draws an index from a categorical distribution.
func (s *Sampler) multinomial(probs []float32) int32 {
	r := s.rng.Float32()
	var cum float32
	last := 0
	for i, p := range probs {
		if p == 0 {
			continue
		}
		last = i
		cum += p
		if r < cum {
			return int32(i) //nolint:gosec // vocab size is bounded by model architecture
		}
	}
	// Rounding left r above the total mass.
	return int32(last) //nolint:gosec // vocab size is bounded by model architecture
}

// softmax converts logits to probabilities; -inf logits get probability 0.
func softmax(logits []float32) []float32 {
	maxVal := float32(math.Inf(-1))
	for _, v := range logits {
		maxVal = max(maxVal, v)
	}
	probs := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			continue
		}
		probs[i] = float32(math.Exp(float64(v - maxVal)))
		sum += probs[i]
	}
	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}
	return probs
}
