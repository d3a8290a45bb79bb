// tinychat-eval measures the perplexity of a model directory on a validation
// corpus, generates a few sample responses and writes a JSON report.
//
// The exit status is 0 when the perplexity is within --perplexity-threshold and
// 1 otherwise, including when the evaluation itself fails.
package main

import (
	"flag"
	"os"

	"github.com/born-ml/tinychat/internal/config"
	"github.com/born-ml/tinychat/internal/eval"
	"github.com/born-ml/tinychat/internal/generate"
	"github.com/born-ml/tinychat/internal/inference"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagModelDir   = flag.String("model-dir", "./model", "Directory containing the model and tokenizer.")
	flagDataFile   = flag.String("data-file", "data/validation_data.txt", "File containing validation data, one example per line.")
	flagOutputFile = flag.String("output-file", "evaluation_results.json", "File to save evaluation results. Empty disables it.")
	flagThreshold  = flag.Float64("perplexity-threshold", eval.DefaultThreshold, "Maximum acceptable perplexity value.")
	flagMaxLength  = flag.Int("max-length", eval.DefaultMaxLength, "Maximum number of tokens scored per line.")
	flagSeed       = flag.Int64("seed", -1, "Seed of the sample generations. -1 is random.")
)

// options of one evaluation run.
type options struct {
	DataFile   string
	OutputFile string
	Threshold  float64
	MaxLength  int
	Seed       int64
}

func main() {
	klog.InitFlags(nil)
	if err := config.Parse(flag.CommandLine, os.Args[1:]); err != nil {
		klog.Exitf("%v", err)
	}
	opts := options{
		DataFile:   *flagDataFile,
		OutputFile: *flagOutputFile,
		Threshold:  *flagThreshold,
		MaxLength:  *flagMaxLength,
		Seed:       *flagSeed,
	}

	klog.Infof("Loading model and tokenizer from %s ...", *flagModelDir)
	lm, err := inference.LoadLocal(*flagModelDir)
	if err != nil {
		klog.Errorf("Failed to load model: %+v", err)
		klog.Flush()
		os.Exit(1)
	}
	report, err := evaluate(lm, opts)
	if err != nil {
		klog.Errorf("Evaluation failed: %+v", err)
		klog.Flush()
		os.Exit(1)
	}
	if err := report.Render(os.Stdout); err != nil {
		klog.Warningf("Failed to print the report: %v", err)
	}
	klog.Flush()
	if !report.Passed {
		os.Exit(1)
	}
}

// evaluate scores the validation corpus, runs the sample prompts and, when
// opts.OutputFile is set, writes the report there.
func evaluate(lm inference.LanguageModel, opts options) (eval.Report, error) {
	result, err := eval.Perplexity(lm, opts.DataFile, opts.MaxLength)
	if err != nil {
		return eval.Report{}, errors.WithMessage(err, "perplexity")
	}
	klog.Infof("Perplexity: %.4f (%d lines, %d tokens)", result.Perplexity, result.Lines, result.Tokens)

	klog.Infof("Generating sample responses ...")
	sampleConfig := generate.SampleConfig(eval.SampleMaxLength)
	sampleConfig.Seed = opts.Seed
	samples, err := eval.RunSamples(lm, eval.DefaultPrompts, eval.SampleMaxLength, sampleConfig)
	if err != nil {
		return eval.Report{}, errors.WithMessage(err, "sample generations")
	}

	report := eval.BuildReport(result, samples, opts.Threshold)
	if opts.OutputFile != "" {
		if err := report.WriteFile(opts.OutputFile); err != nil {
			return eval.Report{}, errors.WithMessagef(err, "failed to save results to %s", opts.OutputFile)
		}
		klog.Infof("Evaluation results saved to %s", opts.OutputFile)
	}
	klog.Infof("%s", report.Verdict())
	return report, nil
}
