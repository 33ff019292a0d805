package report

import (
	"errors"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/shirerpeton/diarEval/internal/pipeline"
)

// PlotIER saves a bar chart of the per-clip error rates as a PNG. Clips with
// an undefined rate are left out.
func PlotIER(path string, batch *pipeline.BatchResult) error {
	var values plotter.Values
	var names []string
	for _, res := range batch.Results {
		if !res.HasIER {
			continue
		}
		values = append(values, res.IER)
		names = append(names, res.Clip.Name)
	}
	if len(values) == 0 {
		return errors.New("no clip has a defined error rate")
	}

	p := plot.New()
	p.Title.Text = "Identification error rate per clip"
	p.Y.Label.Text = "IER"
	p.Y.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(8))
	if err != nil {
		return err
	}
	bars.Color = color.RGBA{R: 196, G: 64, B: 160, A: 255}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = 1.2
	p.X.Tick.Label.XAlign = -1.0

	if mean := batch.Summary.Mean; batch.Summary.Clips > 0 {
		line, err := plotter.NewLine(plotter.XYs{
			{X: -0.5, Y: mean},
			{X: float64(len(values)) - 0.5, Y: mean},
		})
		if err != nil {
			return err
		}
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
	}

	width := max(6*vg.Inch, vg.Length(len(values))*vg.Points(14))
	return p.Save(width, 4*vg.Inch, path)
}
