package inference

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// ConfigError reports a startup resource that is missing or unusable.
type ConfigError struct {
	Resource string // "system prompt" or "model"
	Path     string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s at %q: %v", e.Resource, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Context is the process-wide state of the chat service: created once at
// startup, never reassigned, shared read-only by all requests.
type Context struct {
	SystemPrompt string
	Model        LanguageModel
}

// LoadSystemPrompt reads the system prompt file and trims surrounding whitespace.
func LoadSystemPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ConfigError{Resource: "system prompt", Path: path, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// LoadContext loads the system prompt and the local model directory.
func LoadContext(systemPromptPath, modelDir string) (*Context, error) {
	prompt, err := LoadSystemPrompt(systemPromptPath)
	if err != nil {
		return nil, err
	}
	lm, err := LoadLocal(modelDir)
	if err != nil {
		return nil, &ConfigError{Resource: "model", Path: modelDir, Err: err}
	}
	info := lm.Info()
	klog.Infof("Loaded %s (version %s, %s parameters) from %s", info.Name, info.Version, humanize.Comma(int64(info.Params)), modelDir)
	return &Context{SystemPrompt: prompt, Model: lm}, nil
}
