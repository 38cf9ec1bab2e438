package curve

import (
	"time"

	"github.com/bashkirian/payment-health/internal/aggregator"
	"github.com/bashkirian/payment-health/pkg/models"
)

// HoverInfo is what the tooltip shows for one bucket index.
type HoverInfo struct {
	Index       int           `json:"index" yaml:"index"`
	Label       string        `json:"label" yaml:"label"`
	Start       time.Time     `json:"start" yaml:"start"`
	Total       int           `json:"total" yaml:"total"`
	Approved    int           `json:"approved" yaml:"approved"`
	Declined    int           `json:"declined" yaml:"declined"`
	SuccessRate float64       `json:"success_rate" yaml:"success_rate"`
	Health      models.Health `json:"health" yaml:"health"`

	TotalPoint    Point `json:"total_point" yaml:"total_point"`
	ApprovedPoint Point `json:"approved_point" yaml:"approved_point"`
	DeclinedPoint Point `json:"declined_point" yaml:"declined_point"`
}

// Hover looks up bucket i. It does not interpolate between buckets.
func Hover(buckets []models.Bucket, i int) (HoverInfo, bool) {
	if i < 0 || i >= len(buckets) {
		return HoverInfo{}, false
	}
	b := aggregator.Aggregate(buckets[i])
	n := len(buckets)
	return HoverInfo{
		Index:         i,
		Label:         b.Label,
		Start:         b.Start,
		Total:         b.Total,
		Approved:      b.Approved,
		Declined:      b.Declined,
		SuccessRate:   b.SuccessRate,
		Health:        aggregator.Classify(b.SuccessRate),
		TotalPoint:    pointAt(i, n, Total(b), maxValue(buckets, Total)),
		ApprovedPoint: pointAt(i, n, Approved(b), maxValue(buckets, Approved)),
		DeclinedPoint: pointAt(i, n, Declined(b), maxValue(buckets, Declined)),
	}, true
}
