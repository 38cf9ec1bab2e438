package aggregator

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bashkirian/payment-health/internal/bucket"
	"github.com/bashkirian/payment-health/pkg/models"
)

// Health thresholds, percent. Badge colors downstream depend on these exact values.
const (
	GoodThreshold    = 96.0
	WarningThreshold = 94.0
)

// Aggregate fills SuccessRate for a single bucket.
func Aggregate(b models.Bucket) models.Bucket {
	b.SuccessRate = SuccessRate(b.Approved, b.Total)
	return b
}

// AggregateAll returns a copy of buckets with success rates filled in.
func AggregateAll(buckets []models.Bucket) []models.Bucket {
	if buckets == nil {
		return nil
	}
	out := make([]models.Bucket, len(buckets))
	for i, b := range buckets {
		out[i] = Aggregate(b)
	}
	return out
}

// SuccessRate is approved/total in percent rounded to one decimal, 0 for an empty total.
func SuccessRate(approved, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round1(float64(approved) / float64(total) * 100)
}

// Classify maps a success rate to a health class.
func Classify(rate float64) models.Health {
	switch {
	case rate >= GoodThreshold:
		return models.HealthGood
	case rate >= WarningThreshold:
		return models.HealthWarning
	default:
		return models.HealthCritical
	}
}

// Summarize totals the buckets and adds volume and latency from the events
// between the first bucket start and now.
func Summarize(events []models.Event, buckets []models.Bucket, now time.Time) models.Summary {
	var s models.Summary
	for _, b := range buckets {
		s.Total += b.Total
		s.Approved += b.Approved
		s.Declined += b.Declined
	}
	s.SuccessRate = SuccessRate(s.Approved, s.Total)
	s.Health = Classify(s.SuccessRate)
	s.Volume = decimal.Zero

	if len(buckets) == 0 {
		return s
	}
	from := buckets[0].Start
	var latencySum float64
	var latencyN int
	for _, e := range events {
		if !e.Date.Valid || e.Date.Time.Before(from) || e.Date.Time.After(now) {
			continue
		}
		if bucket.ResolveOutcome(e) == bucket.Approved && e.Amount.Valid {
			s.Volume = s.Volume.Add(e.Amount.Decimal)
		}
		if e.LatencyMs != nil && *e.LatencyMs >= 0 {
			latencySum += float64(*e.LatencyMs)
			latencyN++
		}
	}
	if latencyN > 0 {
		s.AvgLatencyMs = round1(latencySum / float64(latencyN))
	}
	return s
}

// UnknownProvider groups events that carry no provider.
const UnknownProvider = "unknown"

// ByProvider breaks the window down per provider, busiest first. The window
// is the same as in Summarize.
func ByProvider(events []models.Event, buckets []models.Bucket, now time.Time) []models.ProviderSummary {
	if len(buckets) == 0 {
		return nil
	}
	from := buckets[0].Start
	groups := make(map[string]*models.ProviderSummary)
	for _, e := range events {
		if !e.Date.Valid || e.Date.Time.Before(from) || e.Date.Time.After(now) {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(e.Provider))
		if name == "" {
			name = UnknownProvider
		}
		g, ok := groups[name]
		if !ok {
			g = &models.ProviderSummary{Provider: name, Volume: decimal.Zero}
			groups[name] = g
		}
		g.Total++
		if bucket.ResolveOutcome(e) == bucket.Approved {
			g.Approved++
			if e.Amount.Valid {
				g.Volume = g.Volume.Add(e.Amount.Decimal)
			}
		} else {
			g.Declined++
		}
	}

	out := make([]models.ProviderSummary, 0, len(groups))
	for _, g := range groups {
		g.SuccessRate = SuccessRate(g.Approved, g.Total)
		g.Health = Classify(g.SuccessRate)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Provider < out[j].Provider
	})
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
