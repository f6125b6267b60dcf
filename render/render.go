// Package render draws importance and attribution charts with gonum/plot and
// writes the tabular artifacts that accompany them.
//
// The image format follows the file extension passed to each function
// (.png, .svg, .pdf, ...).
package render

import (
	"encoding/csv"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/shapgo/explain"
	"github.com/YuminosukeSato/shapgo/importance"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// MaxFeatures is the number of features shown by ImportanceChart and
// SummaryPlot.
const MaxFeatures = 20

var (
	barColor   = color.RGBA{R: 30, G: 136, B: 229, A: 255}
	pointColor = color.RGBA{R: 20, G: 80, B: 200, A: 200}
)

// ImportanceChart renders entries as a horizontal bar chart, largest at the
// top. At most MaxFeatures entries are drawn.
func ImportanceChart(entries []importance.Entry, path string) error {
	if len(entries) == 0 {
		return errors.NewEmptyInputError("render.ImportanceChart")
	}
	if len(entries) > MaxFeatures {
		entries = entries[:MaxFeatures]
	}

	// bars are drawn bottom-up, so reverse to put the first entry on top
	n := len(entries)
	values := make(plotter.Values, n)
	names := make([]string, n)
	for i, e := range entries {
		values[n-1-i] = e.Score
		names[n-1-i] = e.Feature
	}

	p := plot.New()
	p.Title.Text = "Feature importance"
	p.X.Label.Text = "Importance"

	bars, err := plotter.NewBarChart(values, vg.Points(10))
	if err != nil {
		return errors.Wrap(err, "render.ImportanceChart")
	}
	bars.Horizontal = true
	bars.Color = barColor
	bars.LineStyle.Width = 0
	p.Add(bars, plotter.NewGrid())
	p.NominalY(names...)

	return save(p, 8*vg.Inch, height(n), path)
}

// SummaryPlot renders a beeswarm-style overview of attr: one row per feature
// ordered by mean |SHAP|, one point per sample at its SHAP value, coloured
// from blue (low feature value) to red (high feature value).
func SummaryPlot(attr *explain.Attribution, path string) error {
	rows, _ := attr.Dims()
	if rows == 0 {
		return errors.NewEmptyInputError("render.SummaryPlot")
	}
	ranked := attr.Ranking().Top(MaxFeatures)

	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(0)
	cmap.SetMax(1)

	p := plot.New()
	p.Title.Text = "SHAP summary"
	p.X.Label.Text = "SHAP value (impact on model output)"

	n := len(ranked)
	names := make([]string, n)
	for r, e := range ranked {
		band := float64(n - 1 - r)
		names[n-1-r] = e.Feature

		values, shap := attr.Column(e.Index)
		q := quantiles(values)
		xys := make(plotter.XYs, len(shap))
		for i, s := range shap {
			xys[i] = plotter.XY{X: s, Y: band + jitter(i)}
		}

		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return errors.Wrap(err, "render.SummaryPlot")
		}
		sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
			c, err := cmap.At(q[i])
			if err != nil {
				c = pointColor
			}
			return draw.GlyphStyle{Color: c, Radius: vg.Points(1.5), Shape: draw.CircleGlyph{}}
		}
		p.Add(sc)
	}
	p.Add(plotter.NewGrid())
	p.NominalY(names...)

	return save(p, 8*vg.Inch, height(n), path)
}

// DependencePlot renders feature value against its SHAP value for every
// sample in attr.
func DependencePlot(attr *explain.Attribution, feature string, path string) error {
	j := indexOf(attr.FeatureNames, feature)
	if j < 0 {
		return errors.NewValidationError("feature", "not an attributed feature", feature)
	}
	values, shap := attr.Column(j)
	if len(values) == 0 {
		return errors.NewEmptyInputError("render.DependencePlot")
	}

	xys := make(plotter.XYs, len(values))
	for i := range values {
		xys[i] = plotter.XY{X: values[i], Y: shap[i]}
	}

	p := plot.New()
	p.Title.Text = "SHAP dependence: " + feature
	p.X.Label.Text = feature
	p.Y.Label.Text = "SHAP value for " + feature

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return errors.Wrap(err, "render.DependencePlot")
	}
	sc.GlyphStyle.Color = pointColor
	sc.GlyphStyle.Radius = vg.Points(2)
	p.Add(sc, plotter.NewGrid())

	return save(p, 6*vg.Inch, 4*vg.Inch, path)
}

// WriteTable writes header and rows as a comma-delimited file.
func WriteTable(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrap(err, "write header")
	}
	if err := w.WriteAll(rows); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

func save(p *plot.Plot, w, h vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}

func height(features int) vg.Length {
	h := vg.Length(features)*0.3*vg.Inch + 1.5*vg.Inch
	if h < 3*vg.Inch {
		return 3 * vg.Inch
	}
	return h
}

// jitter spreads points of one band vertically in [-0.3, 0.3).
func jitter(i int) float64 {
	_, frac := math.Modf(float64(i) * 0.6180339887498949)
	return (frac - 0.5) * 0.6
}

// quantiles maps every value to its empirical quantile in [0, 1].
func quantiles(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := make([]float64, len(values))
	if len(values) == 1 {
		out[0] = 0.5
		return out
	}
	last := float64(len(values) - 1)
	for i, v := range values {
		out[i] = float64(sort.SearchFloat64s(sorted, v)) / last
	}
	return out
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
