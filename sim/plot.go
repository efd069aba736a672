package sim

import (
	"fmt"
	"image/color"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// NewTracePlot creates a time series plot of coordinate dim from the three
// data sources:
// truth:   idealised model values
// measure: measurement values
// est:     estimator output values
// Each source holds one timestep per row. It returns error if either source
// is nil or dim is outside either source's column range.
func NewTracePlot(truth, measure, est *mat.Dense, dim int) (*plot.Plot, error) {
	if truth == nil || measure == nil || est == nil {
		return nil, fmt.Errorf("invalid data supplied")
	}

	for _, m := range []*mat.Dense{truth, measure, est} {
		_, c := m.Dims()
		if dim < 0 || dim >= c {
			return nil, fmt.Errorf("dimension out of range: %d must be less than %d", dim, c)
		}
	}

	p := plot.New()

	p.Title.Text = "Estimation"
	p.X.Label.Text = "t"
	p.Y.Label.Text = fmt.Sprintf("x[%d]", dim)

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	truthLine, err := plotter.NewLine(makeTrace(truth, dim))
	if err != nil {
		return nil, err
	}
	truthLine.Color = color.RGBA{R: 255, B: 128, A: 255}

	p.Add(truthLine)
	p.Legend.Add("model", truthLine)

	measScatter, err := plotter.NewScatter(makeTrace(measure, dim))
	if err != nil {
		return nil, err
	}
	measScatter.GlyphStyle.Color = color.RGBA{G: 255, A: 128}
	measScatter.Shape = draw.CrossGlyph{}
	measScatter.GlyphStyle.Radius = vg.Points(2)

	p.Add(measScatter)
	p.Legend.Add("measurement", measScatter)

	estLine, err := plotter.NewLine(makeTrace(est, dim))
	if err != nil {
		return nil, fmt.Errorf("failed to create line: %v", err)
	}
	estLine.Color = color.RGBA{R: 169, G: 169, B: 169, A: 255}

	p.Add(estLine)
	p.Legend.Add("estimate", estLine)

	return p, nil
}

func makeTrace(m *mat.Dense, dim int) plotter.XYs {
	r, _ := m.Dims()
	pts := make(plotter.XYs, r)
	for i := 0; i < r; i++ {
		pts[i].X = float64(i)
		pts[i].Y = m.At(i, dim)
	}

	return pts
}
