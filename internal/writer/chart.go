package writer

import (
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/analysis"
)

// ErrNothingToChart is returned when no bucket carries an overdraft event.
var ErrNothingToChart = errors.New("no overdraft events to chart")

// ChartWriter renders overdraft events per trend bucket as a PNG bar chart.
type ChartWriter struct {
	Width  int
	Height int
}

// Write renders the chart for s to out.
func (w *ChartWriter) Write(out io.Writer, s *analysis.Summary) error {
	var bars []chart.Value
	var total, peak int
	for _, b := range s.Buckets {
		bars = append(bars, chart.Value{
			Label: b.Start.Format("2006-01-02 15:04"),
			Value: float64(b.Events),
		})
		total += b.Events
		peak = max(peak, b.Events)
	}
	if total == 0 {
		return ErrNothingToChart
	}

	width, height := w.Width, w.Height
	if width == 0 {
		width = 800
	}
	if height == 0 {
		height = 400
	}

	barChart := chart.BarChart{
		Title: fmt.Sprintf("Overdraft events - %s", s.Artifact),
		Background: chart.Style{
			Padding: chart.Box{
				Top:    40,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
		},
		Width:  width,
		Height: height,
		Bars:   bars,
	}
	// Equal bars leave go-chart a zero range, so the axis starts at zero.
	barChart.YAxis.Range = &chart.ContinuousRange{Min: 0, Max: float64(peak)}
	barChart.YAxis.ValueFormatter = func(v interface{}) string {
		if vf, isFloat := v.(float64); isFloat {
			return fmt.Sprintf("%.0f", vf)
		}
		return ""
	}

	if err := barChart.Render(chart.PNG, out); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

// WriteToFile writes the chart PNG to path.
func (w *ChartWriter) WriteToFile(path string, s *analysis.Summary) error {
	return writeFile(path, func(f io.Writer) error { return w.Write(f, s) })
}
