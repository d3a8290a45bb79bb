// Package train fine-tunes a tinygpt model on a text corpus with Adam and a
// linear learning-rate schedule.
package train

import (
	"math/rand"
	"os"
	"strings"

	"github.com/born-ml/tinychat/internal/tokenizer"
	"github.com/pkg/errors"
)

// Dataset holds one token sequence per corpus line. Each sequence starts with
// the beginning-of-text token and ends with end-of-text, and is at most
// blockSize+1 tokens long so it yields at most blockSize predictions.
type Dataset struct {
	Examples [][]int32
}

// ReadLines reads a text file, one example per line, skipping blank lines.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read training data")
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

// NewDataset tokenizes lines.
func NewDataset(lines []string, tok tokenizer.Tokenizer, blockSize int) (*Dataset, error) {
	if blockSize < 1 {
		return nil, errors.Errorf("block size must be positive, got %d", blockSize)
	}
	ds := &Dataset{Examples: make([][]int32, 0, len(lines))}
	for i, line := range lines {
		ids, err := tok.Encode(line)
		if err != nil {
			return nil, errors.WithMessagef(err, "line %d", i+1)
		}
		seq := make([]int32, 0, len(ids)+2)
		seq = append(seq, tok.BosToken())
		seq = append(seq, ids...)
		seq = append(seq, tok.EosToken())
		if len(seq) > blockSize+1 {
			seq = seq[:blockSize+1]
		}
		ds.Examples = append(ds.Examples, seq)
	}
	return ds, nil
}

// Len returns the number of examples.
func (d *Dataset) Len() int { return len(d.Examples) }

// NumTokens returns the number of predicted tokens over all examples.
func (d *Dataset) NumTokens() int {
	n := 0
	for _, ex := range d.Examples {
		n += len(ex) - 1
	}
	return n
}

// Batches splits the examples into shuffled batches of batchSize; the last
// batch may be smaller.
func (d *Dataset) Batches(batchSize int, rng *rand.Rand) [][][]int32 {
	order := rng.Perm(len(d.Examples))
	batches := make([][][]int32, 0, (len(order)+batchSize-1)/batchSize)
	for start := 0; start < len(order); start += batchSize {
		end := min(start+batchSize, len(order))
		batch := make([][]int32, 0, end-start)
		for _, idx := range order[start:end] {
			batch = append(batch, d.Examples[idx])
		}
		batches = append(batches, batch)
	}
	return batches
}

// NumBatches returns the number of batches per epoch.
func (d *Dataset) NumBatches(batchSize int) int {
	return (len(d.Examples) + batchSize - 1) / batchSize
}
