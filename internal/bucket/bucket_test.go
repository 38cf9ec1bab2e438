package bucket

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/bashkirian/payment-health/pkg/models"
)

func approvedAt(t time.Time) models.Event {
	return models.Event{Date: models.At(t), Failed: models.FlagOf(false)}
}

func declinedAt(t time.Time) models.Event {
	return models.Event{Date: models.At(t), Failed: models.FlagOf(true)}
}

func TestBucketize_CountPerRange(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	want := map[models.Range]int{
		models.RangeLastHour:    6,
		models.RangeLast24Hours: 24,
		models.RangeLast7Days:   7,
	}
	inputs := [][]models.Event{
		nil,
		{approvedAt(now.Add(-time.Minute))},
		{approvedAt(now.Add(-48 * time.Hour)), declinedAt(now.Add(time.Hour))},
	}
	for r, count := range want {
		for _, events := range inputs {
			got := Bucketize(events, now, r)
			if len(got) != count {
				t.Errorf("%s: expected %d buckets, got %d", r, count, len(got))
			}
		}
	}
}

func TestBucketize_PresetsCoverSpanExactly(t *testing.T) {
	for _, r := range models.Ranges() {
		p, ok := r.Preset()
		if !ok {
			t.Fatalf("missing preset for %s", r)
		}
		if time.Duration(p.Count)*p.Interval() != p.Span {
			t.Errorf("%s: %d x %s != %s", r, p.Count, p.Interval(), p.Span)
		}
	}
}

func TestBucketize_SingleApprovedEvent24h(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	events := []models.Event{approvedAt(time.Date(2024, 1, 1, 13, 30, 0, 0, time.UTC))}

	buckets := Bucketize(events, now, models.RangeLast24Hours)

	for i, b := range buckets {
		if i == 13 {
			if b.Label != "13:00" {
				t.Errorf("expected label 13:00, got %q", b.Label)
			}
			if b.Approved != 1 || b.Total != 1 || b.Declined != 0 {
				t.Errorf("unexpected bucket 13: %+v", b)
			}
			continue
		}
		if b.Total != 0 {
			t.Errorf("bucket %d should be empty, got %+v", i, b)
		}
	}
}

func TestBucketize_SameBucketMixedOutcomes(t *testing.T) {
	now := time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
	events := []models.Event{
		approvedAt(now.Add(-25 * time.Minute)),
		declinedAt(now.Add(-22 * time.Minute)),
	}

	buckets := Bucketize(events, now, models.RangeLastHour)

	b := buckets[3]
	if b.Approved != 1 || b.Declined != 1 || b.Total != 2 {
		t.Fatalf("unexpected bucket: %+v", b)
	}
	if b.Label != "11:30" {
		t.Errorf("expected label 11:30, got %q", b.Label)
	}
}

func TestBucketize_Conservation(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)
	start := now.Add(-7 * 24 * time.Hour)
	events := []models.Event{
		approvedAt(start),
		approvedAt(start.Add(-time.Nanosecond)),
		declinedAt(now),
		declinedAt(now.Add(time.Nanosecond)),
		approvedAt(start.Add(36 * time.Hour)),
		{Date: models.Timestamp{}},
	}
	inWindow := 0
	for _, e := range events {
		if e.Date.Valid && !e.Date.Time.Before(start) && !e.Date.Time.After(now) {
			inWindow++
		}
	}

	buckets := Bucketize(events, now, models.RangeLast7Days)

	total := 0
	for _, b := range buckets {
		total += b.Total
	}
	if total != inWindow {
		t.Fatalf("expected %d events in buckets, got %d", inWindow, total)
	}
	if buckets[0].Total != 1 || buckets[6].Total != 1 || buckets[1].Total != 1 {
		t.Errorf("unexpected distribution: %+v", buckets)
	}
}

func TestBucketize_Labels(t *testing.T) {
	now := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)

	hour := Bucketize(nil, now, models.RangeLastHour)
	if hour[0].Label != "04:00" || hour[5].Label != "04:50" {
		t.Errorf("unexpected hour labels: %q %q", hour[0].Label, hour[5].Label)
	}

	day := Bucketize(nil, now, models.RangeLast24Hours)
	if day[0].Label != "5:00" || day[19].Label != "0:00" {
		t.Errorf("unexpected day labels: %q %q", day[0].Label, day[19].Label)
	}

	week := Bucketize(nil, now, models.RangeLast7Days)
	if week[0].Label != "Dec 26" || week[6].Label != "Jan 1" {
		t.Errorf("unexpected week labels: %q %q", week[0].Label, week[6].Label)
	}
}

func TestBucketize_LabelsUseLocationOfNow(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).In(loc)

	buckets := Bucketize(nil, now, models.RangeLast24Hours)
	if buckets[0].Label != "3:00" {
		t.Errorf("expected label in local time, got %q", buckets[0].Label)
	}
}

func TestBucketize_UnknownRange(t *testing.T) {
	if got := Bucketize(nil, time.Now(), models.Range("fortnight")); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestBucketize_Idempotent(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	events := []models.Event{
		approvedAt(now.Add(-3 * time.Hour)),
		declinedAt(now.Add(-3 * time.Hour)),
		approvedAt(now.Add(-90 * time.Minute)),
	}
	a := Bucketize(events, now, models.RangeLast24Hours)
	b := Bucketize(events, now, models.RangeLast24Hours)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("expected identical output for identical input")
	}
}

func TestResolveOutcome_DecisionTable(t *testing.T) {
	cases := []struct {
		name   string
		raw    string
		want   Outcome
		source Source
	}{
		{"failed bool", `{"failed": true, "status_category": "approved"}`, Declined, SourceFailedFlag},
		{"failed string True", `{"failed": "True"}`, Declined, SourceFailedFlag},
		{"failed string 1", `{"failed": "1"}`, Declined, SourceFailedFlag},
		{"failed number", `{"failed": 1}`, Declined, SourceFailedFlag},
		{"not failed", `{"failed": false, "status_category": "failed"}`, Approved, SourceFailedFlag},
		{"approved flag", `{"approved": "false"}`, Declined, SourceApprovedFlag},
		{"unknown flag falls through", `{"failed": "maybe", "status_category": "pending"}`, Declined, SourceStatus},
		{"status approved", `{"status_category": "approved"}`, Approved, SourceStatus},
		{"status refunded", `{"status_category": "refunded"}`, Declined, SourceStatus},
		{"nothing", `{}`, Approved, SourceDefault},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var e models.Event
			if err := json.Unmarshal([]byte(tc.raw), &e); err != nil {
				t.Fatalf("decode: %v", err)
			}
			got, src := ResolveOutcomeSource(e)
			if got != tc.want || src != tc.source {
				t.Errorf("expected %s via %s, got %s via %s", tc.want, tc.source, got, src)
			}
		})
	}
}
