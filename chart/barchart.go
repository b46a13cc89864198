// Package chart renders grouped bar charts from aggregated metric tables.
// It owns only the drawing: the tables it receives are finished, one
// value-or-missing per (group, condition).
package chart

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Value is one bar height. OK is false when the cell had no data; such
// bars are drawn absent and carry no annotation, so a measured zero stays
// distinguishable from missing data.
type Value struct {
	V  float64
	OK bool
}

// Series holds one condition's values across all groups, in group order.
type Series struct {
	Label  string
	Values []Value
}

// Table is the renderer's input: ordered group labels on the x axis and
// one bar series per condition.
type Table struct {
	GroupLabels []string
	Series      []Series
}

// Config carries the chart texts and canvas size.
type Config struct {
	Title  string
	XLabel string
	YLabel string

	// Width and Height of the saved canvas; defaults are 15x8 inches.
	Width  vg.Length
	Height vg.Length
}

var seriesColors = []color.Color{
	color.RGBA{R: 65, G: 105, B: 225, A: 255},  // royal blue
	color.RGBA{R: 244, G: 164, B: 96, A: 255},  // sandy brown
	color.RGBA{R: 60, G: 179, B: 113, A: 255},  // medium sea green
	color.RGBA{R: 205, G: 92, B: 92, A: 255},   // indian red
	color.RGBA{R: 147, G: 112, B: 219, A: 255}, // medium purple
}

var barWidth = vg.Points(20)

// GroupedBars builds a grouped bar chart: one bar per series per group,
// legend per series, and the numeric value annotated to 4 decimal places
// above every present bar.
func GroupedBars(cfg Config, t Table) (*plot.Plot, error) {
	if len(t.GroupLabels) == 0 {
		return nil, fmt.Errorf("no groups to plot")
	}
	if len(t.Series) == 0 {
		return nil, fmt.Errorf("no series to plot")
	}
	for _, s := range t.Series {
		if len(s.Values) != len(t.GroupLabels) {
			return nil, fmt.Errorf("series %q has %d values for %d groups",
				s.Label, len(s.Values), len(t.GroupLabels))
		}
	}

	p := plot.New()
	p.Title.Text = cfg.Title
	p.X.Label.Text = cfg.XLabel
	p.Y.Label.Text = cfg.YLabel
	p.Y.Min = 0
	p.Legend.Top = true
	p.NominalX(t.GroupLabels...)

	total := barWidth * vg.Length(len(t.Series))
	for i, s := range t.Series {
		heights := make(plotter.Values, len(s.Values))
		for j, v := range s.Values {
			if v.OK {
				heights[j] = v.V
			}
		}

		bars, err := plotter.NewBarChart(heights, barWidth)
		if err != nil {
			return nil, fmt.Errorf("while building bars for %q: %w", s.Label, err)
		}
		bars.Color = seriesColors[i%len(seriesColors)]
		bars.Offset = -total/2 + barWidth/2 + barWidth*vg.Length(i)
		p.Add(bars)
		p.Legend.Add(s.Label, bars)

		labels, err := valueLabels(i, len(t.Series), s.Values)
		if err != nil {
			return nil, fmt.Errorf("while building labels for %q: %w", s.Label, err)
		}
		p.Add(labels)
	}

	return p, nil
}

// valueLabels annotates the present bars of series i of n with their
// value. Label x positions are nudged in data units to sit over the
// offset bars; groups occupy unit slots on a nominal axis.
func valueLabels(i, n int, values []Value) (*plotter.Labels, error) {
	nudge := 0.0
	if n > 1 {
		nudge = -0.2 + 0.4*(float64(i)+0.5)/float64(n)
	}

	var pts plotter.XYs
	var texts []string
	for j, v := range values {
		if !v.OK {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(j) + nudge, Y: v.V})
		texts = append(texts, FormatValue(v.V))
	}

	return plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: texts})
}

// FormatValue renders a bar annotation to 4 decimal places.
func FormatValue(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

// SavePair writes the plot to base.png and base.pdf and returns the two
// paths.
func SavePair(p *plot.Plot, cfg Config, base string) ([]string, error) {
	width, height := cfg.Width, cfg.Height
	if width == 0 {
		width = 15 * vg.Inch
	}
	if height == 0 {
		height = 8 * vg.Inch
	}

	paths := []string{base + ".png", base + ".pdf"}
	for _, path := range paths {
		if err := p.Save(width, height, path); err != nil {
			return nil, fmt.Errorf("while saving %s: %w", path, err)
		}
	}
	return paths, nil
}
