// Package bucket cuts a time range into fixed intervals and counts
// approved/declined transactions per interval.
package bucket

import (
	"strconv"
	"time"

	"github.com/bashkirian/payment-health/pkg/models"
)

// Bucketize returns exactly preset.Count buckets ending at now. Events outside
// [now-span, now] or without a parseable date are ignored. Success rates are
// left at zero; see aggregator.Aggregate.
func Bucketize(events []models.Event, now time.Time, r models.Range) []models.Bucket {
	preset, ok := r.Preset()
	if !ok || preset.Count <= 0 {
		return nil
	}
	interval := preset.Interval()
	start := now.Add(-preset.Span)

	buckets := make([]models.Bucket, preset.Count)
	for i := range buckets {
		bs := start.Add(time.Duration(i) * interval)
		buckets[i] = models.Bucket{
			Index: i,
			Start: bs,
			Label: Label(r, bs),
		}
	}

	for _, e := range events {
		if !e.Date.Valid {
			continue
		}
		ts := e.Date.Time
		offset := ts.Sub(start)
		if offset < 0 || ts.After(now) {
			continue
		}
		idx := int(offset / interval)
		if idx == preset.Count && ts.Equal(now) {
			// the window is closed on the right
			idx = preset.Count - 1
		}
		if idx < 0 || idx >= preset.Count {
			continue
		}
		b := &buckets[idx]
		if ResolveOutcome(e) == Approved {
			b.Approved++
		} else {
			b.Declined++
		}
		b.Total++
	}
	return buckets
}

// Label formats a bucket start for the given range. The location of t is used as is.
func Label(r models.Range, t time.Time) string {
	switch r {
	case models.RangeLastHour:
		return t.Format("15:04")
	case models.RangeLast24Hours:
		return strconv.Itoa(t.Hour()) + ":00"
	case models.RangeLast7Days:
		return t.Format("Jan 2")
	}
	return t.Format(time.RFC3339)
}
