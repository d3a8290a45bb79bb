package train

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/born-ml/tinychat/internal/autodiff"
	"github.com/born-ml/tinychat/internal/optim"
	"github.com/born-ml/tinychat/internal/parallel"
	"github.com/born-ml/tinychat/internal/tinygpt"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Config configures a fine-tuning run.
type Config struct {
	Epochs       int
	BatchSize    int
	LearningRate float64
	Seed         int64

	// LogEvery logs the batch loss every LogEvery steps. 0 disables it.
	LogEvery int

	// Progress, if set, receives a progress bar.
	Progress io.Writer

	// Parallel splits the sequences of a batch over goroutines when building
	// the loss graph.
	Parallel parallel.Config
}

// DefaultConfig returns the defaults of cmd/tinychat-create.
func DefaultConfig() Config {
	return Config{
		Epochs:       1,
		BatchSize:    4,
		LearningRate: 0.01,
		Seed:         42,
		LogEvery:     10,
		Parallel:     parallel.DefaultConfig(),
	}
}

// History records the losses of a run.
type History struct {
	StepLosses  []float64
	EpochLosses []float64 // mean batch loss per epoch
}

// Run fine-tunes model on ds. The learning rate decays linearly from
// cfg.LearningRate to zero over all steps, with no warmup.
func Run(model *tinygpt.Model, ds *Dataset, cfg Config) (*History, error) {
	switch {
	case ds.Len() == 0:
		return nil, errors.New("training dataset is empty")
	case cfg.Epochs < 1:
		return nil, errors.Errorf("epochs must be positive, got %d", cfg.Epochs)
	case cfg.BatchSize < 1:
		return nil, errors.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	case cfg.LearningRate <= 0:
		return nil, errors.Errorf("learning rate must be positive, got %g", cfg.LearningRate)
	}

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible shuffling
	stepsPerEpoch := ds.NumBatches(cfg.BatchSize)
	totalSteps := stepsPerEpoch * cfg.Epochs
	schedule := optim.LinearSchedule{Base: cfg.LearningRate, TotalSteps: totalSteps}
	opt := optim.NewAdam(model.Parameters(), optim.AdamConfig{LR: cfg.LearningRate, WeightDecay: 0.01})

	var bar *progressbar.ProgressBar
	if cfg.Progress != nil {
		bar = progressbar.NewOptions(totalSteps,
			progressbar.OptionSetDescription("Training"),
			progressbar.OptionSetWriter(cfg.Progress),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("steps"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	klog.Infof("Fine-tuning on %d examples (%d tokens): %d epochs x %d steps", ds.Len(), ds.NumTokens(), cfg.Epochs, stepsPerEpoch)
	history := &History{}
	step := 0
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		var epochLoss float64
		for i, batch := range ds.Batches(cfg.BatchSize, rng) {
			loss := batchLoss(model, batch, cfg.Parallel)
			autodiff.Backward(loss)
			opt.SetLR(schedule.At(step))
			opt.Step()
			opt.ZeroGrad()

			history.StepLosses = append(history.StepLosses, loss.Data)
			epochLoss += loss.Data
			if cfg.LogEvery > 0 && i%cfg.LogEvery == 0 {
				klog.Infof("Epoch %d, step %d, loss = %.4f", epoch+1, i, loss.Data)
			}
			if bar != nil {
				bar.Describe(fmt.Sprintf("Epoch %d loss %.3f", epoch+1, loss.Data))
				_ = bar.Add(1)
			}
			step++
		}
		avg := epochLoss / float64(stepsPerEpoch)
		history.EpochLosses = append(history.EpochLosses, avg)
		klog.Infof("Epoch %d completed. Average loss: %.4f", epoch+1, avg)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return history, nil
}

// batchLoss is the mean of the per-sequence losses of batch. Graphs of
// different sequences only read the shared weights, so they are built concurrently.
func batchLoss(model *tinygpt.Model, batch [][]int32, pcfg parallel.Config) *autodiff.Value {
	losses := parallel.Map(len(batch), func(i int) *autodiff.Value {
		return model.Loss(batch[i])
	}, pcfg)
	return autodiff.Scale(autodiff.Sum(losses), 1/float64(len(batch)))
}
