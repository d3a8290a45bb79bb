// Package eval measures a language model: token-weighted perplexity over a
// validation corpus, sample generations, and the pass/fail report built from both.
package eval

import (
	"math"
	"os"
	"strings"

	"github.com/born-ml/tinychat/internal/inference"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultMaxLength is the tokenization limit per corpus line.
const DefaultMaxLength = 128

// ErrEmptyCorpus is reported when the validation corpus has no lines.
var ErrEmptyCorpus = errors.New("validation corpus is empty")

// PerplexityResult is the aggregate score of a corpus.
type PerplexityResult struct {
	AverageLoss float64
	Perplexity  float64
	Lines       int
	Tokens      int
}

// Infinite is the result of a corpus with nothing to score.
func Infinite() PerplexityResult {
	return PerplexityResult{AverageLoss: math.Inf(1), Perplexity: math.Inf(1)}
}

// ReadCorpus reads a validation file: one example per line, blank lines dropped.
func ReadCorpus(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read validation corpus")
	}
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}

// Perplexity scores the corpus at corpusPath. An empty corpus is not an error:
// it is logged and reported as infinite perplexity.
func Perplexity(lm inference.LanguageModel, corpusPath string, maxLength int) (PerplexityResult, error) {
	lines, err := ReadCorpus(corpusPath)
	if err != nil {
		return PerplexityResult{}, err
	}
	result, err := PerplexityOf(lm, lines, maxLength)
	if errors.Is(err, ErrEmptyCorpus) {
		klog.Warningf("Validation corpus %s: %v, perplexity is +Inf", corpusPath, err)
		return Infinite(), nil
	}
	return result, err
}

// PerplexityOf scores lines. Each line's mean loss is weighted by the number
// of tokens the model scored, so the result is exp(total loss / total tokens).
func PerplexityOf(lm inference.LanguageModel, lines []string, maxLength int) (PerplexityResult, error) {
	if len(lines) == 0 {
		return Infinite(), ErrEmptyCorpus
	}
	var (
		totalLoss   float64
		totalTokens int
	)
	for i, line := range lines {
		ids, err := lm.Tokenize(line, maxLength)
		if err != nil {
			return PerplexityResult{}, errors.WithMessagef(err, "line %d", i+1)
		}
		if len(ids) == 0 {
			klog.V(1).Infof("Line %d has no tokens, skipped", i+1)
			continue
		}
		loss, scored, err := lm.ScoreSequence(ids)
		if err != nil {
			return PerplexityResult{}, errors.WithMessagef(err, "failed to score line %d", i+1)
		}
		totalLoss += loss * float64(scored)
		totalTokens += scored
	}
	if totalTokens == 0 {
		return Infinite(), errors.Wrap(ErrEmptyCorpus, "no line produced tokens")
	}
	avg := totalLoss / float64(totalTokens)
	result := PerplexityResult{
		AverageLoss: avg,
		Perplexity:  math.Exp(avg),
		Lines:       len(lines),
		Tokens:      totalTokens,
	}
	klog.Infof("Evaluation on %d samples: average loss %.4f, perplexity %.4f", result.Lines, result.AverageLoss, result.Perplexity)
	return result, nil
}
