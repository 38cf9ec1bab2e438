// Package render draws dashboard snapshots as PNG or SVG charts.
package render

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bashkirian/payment-health/internal/dashboard"
	"github.com/bashkirian/payment-health/pkg/models"
)

type Format string

const (
	FormatPNG Format = "png"
	FormatSVG Format = "svg"
)

var ErrUnknownFormat = errors.New("unknown chart format")

// ParseFormat accepts "png", "svg" or a file name ending in one of them.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "png" || strings.HasSuffix(s, ".png"):
		return FormatPNG, nil
	case s == "svg" || strings.HasSuffix(s, ".svg"):
		return FormatSVG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the HTTP media type for the format.
func (f Format) ContentType() string {
	if f == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) provider() chart.RendererProvider {
	if f == FormatSVG {
		return chart.SVG
	}
	return chart.PNG
}

var (
	colorTotal    = chart.ColorAlternateGray
	colorApproved = drawing.ColorFromHex("22c55e")
	colorDeclined = drawing.ColorFromHex("ef4444")
	colorRate     = chart.ColorBlue
)

// MaxDimension bounds Width and Height so a request cannot ask for a huge canvas.
const MaxDimension = 4096

var ErrBadSize = errors.New("chart size out of range")

// Options control the image size. Zero means the default.
type Options struct {
	Width  int
	Height int
}

// Validate rejects negative sizes and sizes above MaxDimension.
func (o Options) Validate() error {
	for _, d := range []int{o.Width, o.Height} {
		if d < 0 || d > MaxDimension {
			return fmt.Errorf("%w: %dx%d, max %d", ErrBadSize, o.Width, o.Height, MaxDimension)
		}
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = 1024
	}
	if o.Height <= 0 {
		o.Height = 400
	}
	return o
}

// Chart renders counts per bucket on the left axis and the success rate on
// the right axis.
func Chart(w io.Writer, snap dashboard.Snapshot, f Format, opts Options) error {
	if len(snap.Buckets) < 2 {
		return fmt.Errorf("render: need at least 2 buckets, got %d", len(snap.Buckets))
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	opts = opts.withDefaults()

	n := len(snap.Buckets)
	xs := make([]time.Time, n)
	total := make([]float64, n)
	approved := make([]float64, n)
	declined := make([]float64, n)
	rate := make([]float64, n)
	maxCount := 1.0
	for i, b := range snap.Buckets {
		xs[i] = b.Start
		total[i] = float64(b.Total)
		approved[i] = float64(b.Approved)
		declined[i] = float64(b.Declined)
		rate[i] = b.SuccessRate
		if total[i] > maxCount {
			maxCount = total[i]
		}
	}

	ch := chart.Chart{
		Title:      title(snap),
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Ticks: ticks(snap.Buckets),
		},
		YAxis: chart.YAxis{
			Name:  "transactions",
			Range: &chart.ContinuousRange{Min: 0, Max: maxCount * 1.05},
		},
		YAxisSecondary: chart.YAxis{
			Name:  "success %",
			Range: &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Total",
				XValues: xs,
				YValues: total,
				Style:   chart.Style{StrokeColor: colorTotal, StrokeWidth: 2},
			},
			chart.TimeSeries{
				Name:    "Approved",
				XValues: xs,
				YValues: approved,
				Style:   chart.Style{StrokeColor: colorApproved, FillColor: colorApproved.WithAlpha(48), StrokeWidth: 2},
			},
			chart.TimeSeries{
				Name:    "Declined",
				XValues: xs,
				YValues: declined,
				Style:   chart.Style{StrokeColor: colorDeclined, FillColor: colorDeclined.WithAlpha(48), StrokeWidth: 2},
			},
			chart.TimeSeries{
				Name:    "Success rate",
				YAxis:   chart.YAxisSecondary,
				XValues: xs,
				YValues: rate,
				Style:   chart.Style{StrokeColor: colorRate, StrokeWidth: 1.5, StrokeDashArray: []float64{5, 3}},
			},
		},
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(f.provider(), w); err != nil {
		return fmt.Errorf("render %s chart: %w", f, err)
	}
	return nil
}

func title(snap dashboard.Snapshot) string {
	s := snap.Summary
	return fmt.Sprintf("%s | %d tx | %.1f%% (%s)", snap.View.Range, s.Total, s.SuccessRate, s.Health)
}

// ticks labels at most about eight buckets so the 24 hour view stays readable.
func ticks(buckets []models.Bucket) []chart.Tick {
	step := (len(buckets) + 7) / 8
	if step < 1 {
		step = 1
	}
	out := make([]chart.Tick, 0, len(buckets)/step+1)
	for i := 0; i < len(buckets); i += step {
		b := buckets[i]
		out = append(out, chart.Tick{Value: chart.TimeToFloat64(b.Start), Label: b.Label})
	}
	return out
}
