package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bashkirian/payment-health/internal/dashboard"
	"github.com/bashkirian/payment-health/pkg/models"
)

func TestMetrics_WrapHandler(t *testing.T) {
	m := NewMetrics()
	h := m.WrapHandler("/api/events", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/events", nil))
	}

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/events", "201")); got != 2 {
		t.Errorf("expected 2 requests, got %v", got)
	}
}

func TestMetrics_ObserversAndExposition(t *testing.T) {
	m := NewMetrics()
	m.EventStored("kafka", true)
	m.EventStored("kafka", false)
	m.Refreshed(models.RangeLastHour, dashboard.OutcomeStale, 10*time.Millisecond)
	m.ObserveSnapshot(dashboard.Snapshot{
		View:    dashboard.View{Range: models.RangeLast24Hours},
		Summary: models.Summary{SuccessRate: 95.5, Approved: 191, Declined: 9},
	})

	if got := testutil.ToFloat64(m.eventsStored.WithLabelValues("kafka", "error")); got != 1 {
		t.Errorf("expected 1 failed kafka event, got %v", got)
	}
	if got := testutil.ToFloat64(m.successRate.WithLabelValues("last-24-hours")); got != 95.5 {
		t.Errorf("expected gauge 95.5, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`payment_health_dashboard_refreshes_total{outcome="stale",range="last-hour"} 1`,
		`payment_health_window_transactions{outcome="declined",range="last-24-hours"} 9`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.EventStored("http", true)
	m.Refreshed(models.RangeLastHour, dashboard.OutcomeApplied, time.Second)
	m.ObserveSnapshot(dashboard.Snapshot{})
}
