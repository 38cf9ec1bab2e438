package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bashkirian/payment-health/internal/dashboard"
	"github.com/bashkirian/payment-health/pkg/models"
)

const namespace = "payment_health"

type Metrics struct {
	reg *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	eventsStored      *prometheus.CounterVec
	refreshes         *prometheus.CounterVec
	refreshDuration   *prometheus.HistogramVec
	successRate       *prometheus.GaugeVec
	transactions      *prometheus.GaugeVec
}

// NewMetrics registers the collectors on a private registry so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		eventsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_stored_total",
			Help:      "Transaction events written to storage by ingestion source and result.",
		}, []string{"source", "result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_refreshes_total",
			Help:      "Dashboard refreshes by range and outcome (applied, stale, error).",
		}, []string{"range", "outcome"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dashboard_refresh_duration_seconds",
			Help:      "Time spent fetching and aggregating a dashboard view.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"range"}),
		successRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "success_rate_percent",
			Help:      "Success rate of the last applied dashboard snapshot.",
		}, []string{"range"}),
		transactions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_transactions",
			Help:      "Transactions inside the window of the last applied snapshot.",
		}, []string{"range", "outcome"}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.eventsStored,
		m.refreshes,
		m.refreshDuration,
		m.successRate,
		m.transactions,
	)
	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		if m != nil {
			m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.httpDuration.WithLabelValues(route).Observe(duration)
		}
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// EventStored implements aggregator.Observer.
func (m *Metrics) EventStored(source string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.eventsStored.WithLabelValues(source, result).Inc()
}

// Refreshed implements dashboard.RefreshObserver.
func (m *Metrics) Refreshed(r models.Range, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(string(r), outcome).Inc()
	m.refreshDuration.WithLabelValues(string(r)).Observe(took.Seconds())
}

// ObserveSnapshot is meant to be passed to dashboard.Store.Subscribe.
func (m *Metrics) ObserveSnapshot(s dashboard.Snapshot) {
	if m == nil {
		return
	}
	r := string(s.View.Range)
	m.successRate.WithLabelValues(r).Set(s.Summary.SuccessRate)
	m.transactions.WithLabelValues(r, "approved").Set(float64(s.Summary.Approved))
	m.transactions.WithLabelValues(r, "declined").Set(float64(s.Summary.Declined))
}
