package eval

import (
	"github.com/born-ml/tinychat/internal/generate"
	"github.com/born-ml/tinychat/internal/inference"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// SampleMaxLength is the total token budget (prompt included) of a sample.
const SampleMaxLength = 100

// DefaultPrompts are the prompts used for qualitative spot checks.
var DefaultPrompts = []string{
	"The future of renewable energy is",
	"Climate change mitigation requires",
	"The most efficient way to reduce carbon emissions is",
}

// Sample is one prompt and the model's continuation of it.
type Sample struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// RunSamples generates one sample per prompt, in order. Each prompt gets
// maxLength minus its own length new tokens (at least one) and the response is
// the decoded prompt plus continuation. cfg.MaxNewTokens is ignored.
func RunSamples(lm inference.LanguageModel, prompts []string, maxLength int, cfg generate.Config) ([]Sample, error) {
	if cfg.PadTokenID < 0 {
		cfg.PadTokenID = lm.EOSTokenID()
	}
	samples := make([]Sample, 0, len(prompts))
	for i, prompt := range prompts {
		ids, err := lm.Tokenize(prompt, 0)
		if err != nil {
			return nil, errors.WithMessagef(err, "sample %d", i)
		}
		cfg.MaxNewTokens = max(1, maxLength-len(ids))
		generated, err := lm.Generate(ids, cfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "sample %d (%q)", i, prompt)
		}
		response, err := lm.Decode(append(ids, generated...))
		if err != nil {
			return nil, errors.WithMessagef(err, "sample %d", i)
		}
		klog.Infof("Prompt: %s", prompt)
		klog.Infof("Response: %s", response)
		samples = append(samples, Sample{Prompt: prompt, Response: response})
	}
	return samples, nil
}
