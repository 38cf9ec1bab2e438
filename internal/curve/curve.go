// Package curve maps bucket aggregates into a 0..100 plot space and builds
// smoothed SVG path commands for them.
package curve

import (
	"math"
	"strconv"
	"strings"

	"github.com/bashkirian/payment-health/pkg/models"
)

// plotScale leaves a 5 unit margin above the highest point.
const (
	plotScale = 95.0
	baseline  = 100.0
)

// Point is a coordinate in the normalized 0..100 space; y grows downwards.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Curve is one plotted series.
type Curve struct {
	Points []Point `json:"points" yaml:"points"`
	Path   string  `json:"path" yaml:"path"`
}

// Selector extracts the plotted value from a bucket.
type Selector func(models.Bucket) float64

var (
	Total    Selector = func(b models.Bucket) float64 { return float64(b.Total) }
	Approved Selector = func(b models.Bucket) float64 { return float64(b.Approved) }
	Declined Selector = func(b models.Bucket) float64 { return float64(b.Declined) }
)

// Build normalizes the selected series and emits a cubic path through it.
func Build(buckets []models.Bucket, sel Selector) Curve {
	max := maxValue(buckets, sel)
	points := make([]Point, len(buckets))
	for i, b := range buckets {
		points[i] = pointAt(i, len(buckets), sel(b), max)
	}
	return Curve{Points: points, Path: Path(points)}
}

// Path draws a move-to for the first point and one cubic segment per following
// point. Both control points sit at the segment's horizontal midpoint, at the
// y of the start and end point respectively, so the curve never overshoots.
func Path(points []Point) string {
	if len(points) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("M ")
	writePair(&sb, points[0])
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		cx := (prev.X + cur.X) / 2
		sb.WriteString(" C ")
		writePair(&sb, Point{X: cx, Y: prev.Y})
		sb.WriteString(", ")
		writePair(&sb, Point{X: cx, Y: cur.Y})
		sb.WriteString(", ")
		writePair(&sb, cur)
	}
	return sb.String()
}

// Area closes a curve's path down to the baseline at both ends.
func Area(c Curve) string {
	if len(c.Points) == 0 {
		return ""
	}
	first, last := c.Points[0], c.Points[len(c.Points)-1]
	var sb strings.Builder
	sb.WriteString(c.Path)
	sb.WriteString(" L ")
	writePair(&sb, Point{X: last.X, Y: baseline})
	sb.WriteString(" L ")
	writePair(&sb, Point{X: first.X, Y: baseline})
	sb.WriteString(" Z")
	return sb.String()
}

func pointAt(i, n int, value, max float64) Point {
	denom := n - 1
	if denom < 1 {
		denom = 1
	}
	return Point{
		X: float64(i) / float64(denom) * 100,
		Y: baseline - value/max*plotScale,
	}
}

// maxValue floors at 1 so an all-empty series does not divide by zero.
func maxValue(buckets []models.Bucket, sel Selector) float64 {
	max := 1.0
	for _, b := range buckets {
		if v := sel(b); v > max {
			max = v
		}
	}
	return max
}

func writePair(sb *strings.Builder, p Point) {
	sb.WriteString(formatCoord(p.X))
	sb.WriteByte(' ')
	sb.WriteString(formatCoord(p.Y))
}

func formatCoord(v float64) string {
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}
