package monitor

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var ErrNoDecisions = errors.New("monitor: nothing to plot")

// SavePlot writes a PNG (or any format gonum/plot infers from the file
// extension) of voltage per sample, with alerting samples marked.
func SavePlot(decisions []Decision, path string) error {
	if len(decisions) == 0 {
		return ErrNoDecisions
	}

	p := plot.New()
	p.Title.Text = "Battery voltage"
	p.X.Label.Text = "Sample"
	p.Y.Label.Text = "Voltage (mV)"

	volts := make(plotter.XYs, 0, len(decisions))
	var alerts plotter.XYs
	for _, d := range decisions {
		pt := plotter.XY{X: float64(d.Seq), Y: d.Features.VoltageMV}
		volts = append(volts, pt)
		if d.Alert {
			alerts = append(alerts, pt)
		}
	}

	line, err := plotter.NewLine(volts)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("voltage", line)

	if len(alerts) > 0 {
		marks, err := plotter.NewScatter(alerts)
		if err != nil {
			return err
		}
		marks.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		marks.Radius = vg.Points(2)
		p.Add(marks)
		p.Legend.Add("alert", marks)
	}

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
