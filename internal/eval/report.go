package eval

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/born-ml/tinychat/internal/atomicfile"
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
)

// DefaultThreshold is the highest perplexity that passes.
const DefaultThreshold = 1000.0

// Float is a float64 whose JSON form spells non-finite values as the strings
// "Infinity", "-Infinity" and "NaN".
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Float) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity":
			*f = Float(math.Inf(1))
		case "-Infinity":
			*f = Float(math.Inf(-1))
		case "NaN":
			*f = Float(math.NaN())
		default:
			return errors.Errorf("invalid float %q", s)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Report is the outcome of an evaluation run.
type Report struct {
	Perplexity Float    `json:"perplexity"`
	Threshold  float64  `json:"perplexity_threshold"`
	Samples    []Sample `json:"sample_generations"`
	Passed     bool     `json:"evaluation_passed"`
}

// BuildReport combines a perplexity result and samples. The run passes when
// the perplexity is finite and at most threshold.
func BuildReport(result PerplexityResult, samples []Sample, threshold float64) Report {
	if samples == nil {
		samples = []Sample{}
	}
	ppl := result.Perplexity
	return Report{
		Perplexity: Float(ppl),
		Threshold:  threshold,
		Samples:    samples,
		Passed:     !math.IsInf(ppl, 0) && ppl <= threshold,
	}
}

// WriteFile saves the report as indented JSON. The file is replaced atomically.
func (r Report) WriteFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal evaluation report")
	}
	return atomicfile.WriteFile(path, append(data, '\n'), 0o644)
}

// Verdict returns the one-line pass/fail summary.
func (r Report) Verdict() string {
	if r.Passed {
		return fmt.Sprintf("Evaluation PASSED: Perplexity %.4f <= %g", float64(r.Perplexity), r.Threshold)
	}
	return fmt.Sprintf("Evaluation FAILED: Perplexity %.4f > %g", float64(r.Perplexity), r.Threshold)
}

// Render writes a human-readable summary to w, colored when w is a terminal.
func (r Report) Render(w io.Writer) error {
	out := termenv.NewOutput(w)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("Prompt", "Response")
	for _, s := range r.Samples {
		table.Row(s.Prompt, strings.ReplaceAll(s.Response, "\n", " "))
	}

	verdict := out.String(r.Verdict()).Bold()
	if r.Passed {
		verdict = verdict.Foreground(out.Color("2"))
	} else {
		verdict = verdict.Foreground(out.Color("1"))
	}
	var sb strings.Builder
	if len(r.Samples) > 0 {
		sb.WriteString(table.String())
		sb.WriteString("\n")
	}
	sb.WriteString(verdict.String())
	sb.WriteString("\n")
	_, err := io.WriteString(w, sb.String())
	return err
}
