package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/joeblew999/dashdeck/pkg/slides"
)

// asset is a chart raster kept both encoded (SVG embedding) and decoded (raster drawing)
type asset struct {
	png []byte
	img image.Image
}

// renderChart draws a graph with go-chart at the given pixel size
func renderChart(g slides.Graph, w, h int) (asset, error) {
	if err := g.Validate(); err != nil {
		return asset{}, err
	}

	var buf bytes.Buffer
	var err error
	switch {
	// go-chart needs two x values for a line; one label draws as bars
	case g.Type == slides.GraphLine && len(g.Labels) > 1:
		err = lineChart(g, w, h).Render(chart.PNG, &buf)
	case len(g.Series) == 1:
		err = barChart(g, w, h).Render(chart.PNG, &buf)
	default:
		err = stackedChart(g, w, h).Render(chart.PNG, &buf)
	}
	if err != nil {
		return asset{}, fmt.Errorf("render chart %q: %w", g.Title, err)
	}

	img, err := png.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return asset{}, fmt.Errorf("decode chart %q: %w", g.Title, err)
	}
	return asset{png: buf.Bytes(), img: img}, nil
}

// valueRange spans zero and every value, never collapsing to an empty range
func valueRange(g slides.Graph) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, s := range g.Series {
		for _, v := range s.Values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if hi == lo {
		hi = lo + 1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi + (hi-lo)*0.1}
}

func chartPadding() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 24, Left: 24, Right: 24, Bottom: 24}}
}

func barChart(g slides.Graph, w, h int) chart.BarChart {
	bars := make([]chart.Value, len(g.Labels))
	for i, label := range g.Labels {
		bars[i] = chart.Value{Label: label, Value: g.Series[0].Values[i]}
	}
	barWidth := w / (2 * len(bars))
	if barWidth > 120 {
		barWidth = 120
	}
	return chart.BarChart{
		Width:      w,
		Height:     h,
		BarWidth:   barWidth,
		Background: chartPadding(),
		YAxis:      chart.YAxis{Range: valueRange(g)},
		Bars:       bars,
	}
}

func stackedChart(g slides.Graph, w, h int) chart.StackedBarChart {
	bars := make([]chart.StackedBar, len(g.Labels))
	for i, label := range g.Labels {
		values := make([]chart.Value, len(g.Series))
		for j, s := range g.Series {
			values[j] = chart.Value{Label: s.Name, Value: s.Values[i]}
		}
		bars[i] = chart.StackedBar{Name: label, Values: values}
	}
	return chart.StackedBarChart{
		Width:      w,
		Height:     h,
		Background: chartPadding(),
		Bars:       bars,
	}
}

func lineChart(g slides.Graph, w, h int) chart.Chart {
	n := len(g.Labels)
	xs := make([]float64, n)
	ticks := make([]chart.Tick, n)
	for i, label := range g.Labels {
		xs[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: label}
	}

	series := make([]chart.Series, len(g.Series))
	for i, s := range g.Series {
		series[i] = chart.ContinuousSeries{Name: s.Name, XValues: xs, YValues: s.Values}
	}

	c := chart.Chart{
		Width:      w,
		Height:     h,
		Background: chartPadding(),
		XAxis: chart.XAxis{
			Ticks: ticks,
			Range: &chart.ContinuousRange{Min: -0.5, Max: float64(n) - 0.5},
		},
		YAxis:  chart.YAxis{Range: valueRange(g)},
		Series: series,
	}
	if len(series) > 1 {
		c.Elements = []chart.Renderable{chart.Legend(&c)}
	}
	return c
}
