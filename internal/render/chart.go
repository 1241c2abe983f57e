package render

import (
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"spxreplay/internal/model"
)

// ErrTooFewPoints is returned when a chart would have a degenerate x range.
var ErrTooFewPoints = errors.New("render: at least two distinct timestamps required")

// ChartOptions size a rendered chart.
type ChartOptions struct {
	Title  string
	Width  int
	Height int
}

// BuildChart lays out the OHLC series of points, with the decision score on
// the secondary axis when withDecision is set.
func BuildChart(points []model.DataPoint, withDecision bool, opts ChartOptions) (chart.Chart, error) {
	if opts.Width <= 0 {
		opts.Width = 1280
	}
	if opts.Height <= 0 {
		opts.Height = 720
	}
	if len(points) < 2 || !earliest(points).Before(latest(points)) {
		return chart.Chart{}, ErrTooFewPoints
	}

	x := make([]time.Time, len(points))
	open := make([]float64, len(points))
	high := make([]float64, len(points))
	low := make([]float64, len(points))
	closes := make([]float64, len(points))
	minY, maxY := math.Inf(1), math.Inf(-1)
	for i, p := range points {
		x[i] = p.Timestamp
		open[i], high[i], low[i], closes[i] = p.Open, p.High, p.Low, p.Close
		for _, v := range []float64{p.Open, p.High, p.Low, p.Close} {
			minY = math.Min(minY, v)
			maxY = math.Max(maxY, v)
		}
	}
	pad := (maxY - minY) * 0.05
	if pad == 0 {
		pad = 1
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
			Range:          &chart.ContinuousRange{Min: minY - pad, Max: maxY + pad},
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Open", XValues: x, YValues: open},
			chart.TimeSeries{Name: "High", XValues: x, YValues: high},
			chart.TimeSeries{Name: "Low", XValues: x, YValues: low},
			chart.TimeSeries{Name: "Close", XValues: x, YValues: closes},
		},
	}

	if withDecision {
		decision := make([]float64, len(points))
		for i, p := range points {
			if p.Decision != nil {
				decision[i] = p.Decision.Value
			}
		}
		graph.YAxisSecondary = chart.YAxis{
			Name:           "Decision",
			ValueFormatter: priceFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 100},
		}
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "Decision",
			XValues: x,
			YValues: decision,
			YAxis:   chart.YAxisSecondary,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	return graph, nil
}

// WritePNG renders points into w.
func WritePNG(w io.Writer, points []model.DataPoint, withDecision bool, opts ChartOptions) error {
	graph, err := BuildChart(points, withDecision, opts)
	if err != nil {
		return err
	}
	return graph.Render(chart.PNG, w)
}

// WritePNGFile renders into a temporary sibling of path and renames it into
// place so readers never observe a partial image.
func WritePNGFile(path string, points []model.DataPoint, withDecision bool, opts ChartOptions) error {
	if err := EnsureDir(path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := WritePNG(tmp, points, withDecision, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func earliest(points []model.DataPoint) time.Time {
	t := points[0].Timestamp
	for _, p := range points[1:] {
		if p.Timestamp.Before(t) {
			t = p.Timestamp
		}
	}
	return t
}

func latest(points []model.DataPoint) time.Time {
	t := points[0].Timestamp
	for _, p := range points[1:] {
		if p.Timestamp.After(t) {
			t = p.Timestamp
		}
	}
	return t
}
