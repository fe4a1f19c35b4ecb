package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to plot")

// RenderMotionChart writes an HTML line chart of deviation from gravity
// against the idle threshold.
func RenderMotionChart(w io.Writer, points []MotionPoint, threshold float64) error {
	x := make([]string, 0, len(points))
	dev := make([]opts.LineData, 0, len(points))
	thr := make([]opts.LineData, 0, len(points))
	for _, p := range points {
		x = append(x, p.Time.Format("15:04:05.000"))
		dev = append(dev, opts.LineData{Value: p.Deviation})
		thr = append(thr, opts.LineData{Value: threshold})
	}

	subtitle := fmt.Sprintf("samples=%d threshold=%.2f m/s²", len(points), threshold)
	if len(points) > 0 {
		subtitle += " last=" + points[len(points)-1].Time.Format(time.RFC3339)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Motion", Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Deviation from gravity", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m/s²"}),
	)
	line.SetXAxis(x).
		AddSeries("deviation", dev).
		AddSeries("threshold", thr)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(line)
	return page.Render(w)
}

// RenderHistogram writes a PNG histogram of ranges in millimetres.
func RenderHistogram(w io.Writer, ranges []float64, bins int, title string) error {
	if len(ranges) == 0 {
		return ErrNoData
	}
	if bins <= 0 {
		bins = 32
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Range (mm)"
	p.Y.Label.Text = "Pixels"

	h, err := plotter.NewHist(plotter.Values(ranges), bins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	h.FillColor = color.NRGBA{G: 0xb0, A: 0xff}
	h.LineStyle.Width = vg.Points(0.5)
	p.Add(h)

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("histogram writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
