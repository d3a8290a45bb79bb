// tinychat-create materializes the tiny model directory, optionally
// fine-tuning it and syncing it with a Cloud Storage bucket.
//
// Examples:
//
//	# Train locally, write the model to ./model
//	tinychat-create --train --force-train --data-file data/training_data.txt --model-dir ./model
//
//	# Reuse a model from a bucket, training and uploading one when absent
//	tinychat-create --train --gcs-path gs://my-bucket/tiny-llm-model
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/born-ml/tinychat/internal/config"
	"github.com/born-ml/tinychat/internal/serialization"
	"github.com/born-ml/tinychat/internal/tinygpt"
	"github.com/born-ml/tinychat/internal/tokenizer"
	"github.com/born-ml/tinychat/internal/train"
	"github.com/born-ml/tinychat/internal/transfer"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagTrain        = flag.Bool("train", false, "Fine-tune the model when no model is fetched from --gcs-path.")
	flagForceTrain   = flag.Bool("force-train", false, "Always fine-tune, even if a model exists on --gcs-path.")
	flagGCSPath      = flag.String("gcs-path", "", "Cloud Storage path to pull/push the model, e.g. gs://my-bucket/tiny-llm-model.")
	flagDataFile     = flag.String("data-file", "data/training_data.txt", "Training text file, one example per line.")
	flagModelDir     = flag.String("model-dir", "/app/model", "Where to store the model. Use a local path outside Docker.")
	flagEpochs       = flag.Int("epochs", 1, "Number of fine-tuning epochs.")
	flagBatchSize    = flag.Int("batch-size", 4, "Fine-tuning batch size.")
	flagLearningRate = flag.Float64("learning-rate", 0.01, "Initial learning rate, decayed linearly to zero.")
	flagTokenizer    = flag.String("tokenizer", string(tokenizer.ModeBPE), "Tokenizer: \"bpe\" or \"char\".")
	flagEncoding     = flag.String("encoding", tokenizer.EncodingR50kBase, "tiktoken encoding of the bpe tokenizer.")
	flagNEmbd        = flag.Int("n-embd", 16, "Embedding size.")
	flagNHead        = flag.Int("n-head", 4, "Number of attention heads.")
	flagNLayer       = flag.Int("n-layer", 1, "Number of transformer layers.")
	flagBlockSize    = flag.Int("block-size", 64, "Context size in tokens.")
	flagDType        = flag.String("dtype", "f32", "Storage type of the weights: f32 or f16.")
	flagSeed         = flag.Int64("seed", 42, "Seed of weight initialization and data shuffling.")
	flagLossPlot     = flag.String("loss-plot", "", "If set, save the training loss curve to this image file.")
)

// options of one create run.
type options struct {
	Train, ForceTrain bool
	GCSPath           string
	DataFile          string
	ModelDir          string
	Tokenizer         tokenizer.Mode
	Encoding          string
	Model             tinygpt.Config // VocabSize is filled from the tokenizer
	DType             serialization.DType
	Training          train.Config
	LossPlot          string
}

// artifactStore moves model directories to and from remote storage.
type artifactStore interface {
	Fetch(ctx context.Context, remote, local string) bool
	Push(ctx context.Context, local, remote string) error
}

func main() {
	klog.InitFlags(nil)
	if err := config.Parse(flag.CommandLine, os.Args[1:]); err != nil {
		klog.Exitf("%v", err)
	}
	defer klog.Flush()

	trainConfig := train.DefaultConfig()
	trainConfig.Epochs = *flagEpochs
	trainConfig.BatchSize = *flagBatchSize
	trainConfig.LearningRate = *flagLearningRate
	trainConfig.Seed = *flagSeed
	trainConfig.Progress = os.Stderr
	opts := options{
		Train:      *flagTrain,
		ForceTrain: *flagForceTrain,
		GCSPath:    *flagGCSPath,
		DataFile:   *flagDataFile,
		ModelDir:   *flagModelDir,
		Tokenizer:  tokenizer.Mode(*flagTokenizer),
		Encoding:   *flagEncoding,
		Model: tinygpt.Config{
			NEmbd:     *flagNEmbd,
			NHead:     *flagNHead,
			NLayer:    *flagNLayer,
			BlockSize: *flagBlockSize,
		},
		DType:    must.M1(serialization.ParseDType(*flagDType)),
		Training: trainConfig,
		LossPlot: *flagLossPlot,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := create(ctx, opts, transfer.New()); err != nil {
		klog.Exitf("Failed to create model: %+v", err)
	}
}

// create fetches, or builds and saves, the model directory described by opts.
func create(ctx context.Context, opts options, store artifactStore) error {
	klog.Infof("Model directory: %s", opts.ModelDir)
	if err := os.MkdirAll(opts.ModelDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create model directory")
	}

	if opts.GCSPath != "" && !opts.ForceTrain {
		if store.Fetch(ctx, opts.GCSPath, opts.ModelDir) {
			if tinygpt.Exists(opts.ModelDir) {
				klog.Infof("Using existing model from %s. Skipping training.", opts.GCSPath)
				return nil
			}
			klog.Warningf("%s did not contain a complete model, creating one", opts.GCSPath)
		}
	}
	klog.Infof("No existing remote model (or training forced). Creating a new model ...")

	lines, err := readCorpus(opts.DataFile)
	if err != nil {
		return err
	}
	tok, err := tokenizer.Build(opts.Tokenizer, opts.Encoding, lines)
	if err != nil {
		return err
	}
	modelConfig := opts.Model
	modelConfig.VocabSize = tok.VocabSize()
	model, err := tinygpt.New(modelConfig, opts.Training.Seed)
	if err != nil {
		return err
	}

	if opts.Train || opts.ForceTrain {
		if len(lines) == 0 {
			return errors.Errorf("cannot fine-tune: no training data in %q", opts.DataFile)
		}
		klog.Infof("Fine-tuning on %s ...", opts.DataFile)
		ds, err := train.NewDataset(lines, tok, modelConfig.BlockSize)
		if err != nil {
			return err
		}
		history, err := train.Run(model, ds, opts.Training)
		if err != nil {
			return err
		}
		klog.Infof("Fine-tuning complete.")
		if opts.LossPlot != "" {
			if err := history.SavePlot(opts.LossPlot); err != nil {
				klog.Warningf("Failed to save loss plot: %v", err)
			} else {
				klog.Infof("Loss curve saved to %s", opts.LossPlot)
			}
		}
	}

	if err := tinygpt.Save(opts.ModelDir, model, tok, opts.DType); err != nil {
		return err
	}
	klog.Infof("Model + tokenizer saved to %s", opts.ModelDir)

	if opts.GCSPath != "" {
		if err := store.Push(ctx, opts.ModelDir, opts.GCSPath); err != nil {
			klog.Warningf("Upload failed, the model is only stored locally: %v", err)
		}
	}
	return nil
}

// readCorpus returns the lines of path, or nil when it does not exist.
func readCorpus(path string) ([]string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		klog.Warningf("Training data %q not found, using a printable ASCII vocabulary", path)
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to access training data")
	}
	klog.Infof("Reading training data %s (%s)", path, humanize.Bytes(uint64(info.Size())))
	return train.ReadLines(path)
}
