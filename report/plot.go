// Package report renders search results as images.
package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/scigo-tune/model_selection"
	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// Size of the written image.
var (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

// errPoints carries means and their ±std for one score series.
type errPoints struct {
	plotter.XYs
	plotter.YErrors
}

// PlotCVResults writes the mean test score of every candidate, best rank
// first, with ±std error bars. Train scores are drawn too when the search
// recorded them. Candidates whose mean is not finite are skipped. The file
// format follows the extension of path.
func PlotCVResults(results *model_selection.CVResults, path, title string) error {
	if results == nil || results.Len() == 0 {
		return errors.NewValueError("PlotCVResults", "no results to plot")
	}

	order := results.Order()
	test := series(order, results.MeanTestScore, results.StdTestScore)
	if len(test.XYs) == 0 {
		return errors.NewValueError("PlotCVResults", "every candidate has a non-finite test score")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "candidate (by rank)"
	p.Y.Label.Text = fmt.Sprintf("mean %s", scoringLabel(results.Scoring))
	p.Add(plotter.NewGrid())

	if err := addSeries(p, "test", test, color.RGBA{R: 31, G: 119, B: 180, A: 255}, draw.CircleGlyph{}); err != nil {
		return err
	}
	if results.MeanTrainScore != nil {
		train := series(order, results.MeanTrainScore, results.StdTrainScore)
		if len(train.XYs) > 0 {
			if err := addSeries(p, "train", train, color.RGBA{R: 255, G: 127, B: 14, A: 255}, draw.TriangleGlyph{}); err != nil {
				return err
			}
		}
	}
	p.Legend.Top = true

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create plot directory %s", dir)
		}
	}
	if err := p.Save(Width, Height, path); err != nil {
		return errors.Wrapf(err, "failed to save plot %s", path)
	}
	return nil
}

// series lays the candidates out at x = 1..n in the given order.
func series(order []int, mean, std []float64) errPoints {
	var pts errPoints
	for pos, i := range order {
		if math.IsNaN(mean[i]) || math.IsInf(mean[i], 0) {
			continue
		}
		s := std[i]
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		pts.XYs = append(pts.XYs, plotter.XY{X: float64(pos + 1), Y: mean[i]})
		pts.YErrors = append(pts.YErrors, struct{ Low, High float64 }{Low: s, High: s})
	}
	return pts
}

func addSeries(p *plot.Plot, name string, pts errPoints, c color.Color, shape draw.GlyphDrawer) error {
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrapf(err, "plotting %s scores", name)
	}
	scatter.Color = c
	scatter.Shape = shape
	scatter.Radius = vg.Points(3)

	bars, err := plotter.NewYErrorBars(pts)
	if err != nil {
		return errors.Wrapf(err, "plotting %s error bars", name)
	}
	bars.Color = c

	p.Add(bars, scatter)
	p.Legend.Add(name, scatter)
	return nil
}

func scoringLabel(scoring string) string {
	if scoring == "" {
		return "score"
	}
	return scoring
}
