// Package dashboard owns the displayed view: it fetches events for a range and
// filter set, runs them through the bucket/aggregate/curve pipeline and keeps
// the latest applied snapshot.
package dashboard

import (
	"fmt"
	"time"

	"github.com/bashkirian/payment-health/internal/aggregator"
	"github.com/bashkirian/payment-health/internal/bucket"
	"github.com/bashkirian/payment-health/internal/curve"
	"github.com/bashkirian/payment-health/pkg/models"
)

// View is what the user selected: a range plus filters.
type View struct {
	Range  models.Range  `json:"range" yaml:"range"`
	Filter models.Filter `json:"filter" yaml:"filter"`
}

// Query turns the view into a storage query for the window ending at now.
func (v View) Query(now time.Time) (models.Query, error) {
	p, ok := v.Range.Preset()
	if !ok {
		return models.Query{}, fmt.Errorf("%w: %q", models.ErrUnknownRange, v.Range)
	}
	return models.Query{From: now.Add(-p.Span), To: now, Filter: v.Filter}, nil
}

// Series is one plotted line together with its filled-area path.
type Series struct {
	Points []curve.Point `json:"points" yaml:"points"`
	Path   string        `json:"path" yaml:"path"`
	Area   string        `json:"area" yaml:"area"`
}

type Curves struct {
	Total    Series `json:"total" yaml:"total"`
	Approved Series `json:"approved" yaml:"approved"`
	Declined Series `json:"declined" yaml:"declined"`
}

// Snapshot is the result of one aggregation cycle.
type Snapshot struct {
	View        View                     `json:"view" yaml:"view"`
	Generation  uint64                   `json:"generation" yaml:"generation"`
	GeneratedAt time.Time                `json:"generated_at" yaml:"generated_at"`
	Buckets     []models.Bucket          `json:"buckets" yaml:"buckets"`
	Summary     models.Summary           `json:"summary" yaml:"summary"`
	Providers   []models.ProviderSummary `json:"providers" yaml:"providers"`
	Curves      Curves                   `json:"curves" yaml:"curves"`
}

// Hover looks up the tooltip data for bucket i.
func (s Snapshot) Hover(i int) (curve.HoverInfo, bool) {
	return curve.Hover(s.Buckets, i)
}

// Compute runs the full pipeline over events. It never mutates events.
func Compute(events []models.Event, now time.Time, v View) (Snapshot, error) {
	if _, ok := v.Range.Preset(); !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", models.ErrUnknownRange, v.Range)
	}
	buckets := aggregator.AggregateAll(bucket.Bucketize(events, now, v.Range))
	return Snapshot{
		View:        v,
		GeneratedAt: now,
		Buckets:     buckets,
		Summary:     aggregator.Summarize(events, buckets, now),
		Providers:   aggregator.ByProvider(events, buckets, now),
		Curves: Curves{
			Total:    series(buckets, curve.Total),
			Approved: series(buckets, curve.Approved),
			Declined: series(buckets, curve.Declined),
		},
	}, nil
}

func series(buckets []models.Bucket, sel curve.Selector) Series {
	c := curve.Build(buckets, sel)
	return Series{Points: c.Points, Path: c.Path, Area: curve.Area(c)}
}
