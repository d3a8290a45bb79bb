package train

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// SavePlot draws the per-step loss curve. The image format follows the
// extension of path (.png, .svg, .pdf, ...).
func (h *History) SavePlot(path string) error {
	if len(h.StepLosses) == 0 {
		return errors.New("no losses to plot")
	}
	p := plot.New()
	p.Title.Text = "Training loss"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "loss"
	p.Y.Min = 0

	points := make(plotter.XYs, len(h.StepLosses))
	for i, loss := range h.StepLosses {
		points[i].X = float64(i + 1)
		points[i].Y = loss
	}
	line, err := plotter.NewLine(points)
	if err != nil {
		return errors.Wrap(err, "failed to build loss curve")
	}
	p.Add(plotter.NewGrid(), line)
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "failed to save loss plot to %s", path)
	}
	return nil
}
