package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/bashkirian/payment-health/internal/curve"
	"github.com/bashkirian/payment-health/internal/dashboard"
)

const eventsJSON = `[
  {"id":"1","date":"2024-01-01T13:30:00Z","approved":true,"merchant_name":"Acme"},
  {"id":"2","date":"2024-01-01T13:45:00Z","failed":"1","merchant_name":"Acme"},
  {"id":"3","date":"2024-01-01T20:00:00Z","status_category":"approved","merchant_name":"Other"}
]`

func writeEvents(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	var out bytes.Buffer
	cmd := NewRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDashboard_FromFileJSON(t *testing.T) {
	path := writeEvents(t, eventsJSON)

	out, err := run(t, "dashboard", "--from-file", path, "--now", "2024-01-02T00:00:00Z", "-o", "json")
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	var snap dashboard.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("output is not a snapshot: %v", err)
	}
	b := snap.Buckets[13]
	if b.Label != "13:00" || b.Approved != 1 || b.Declined != 1 || b.SuccessRate != 50 {
		t.Errorf("unexpected bucket 13: %+v", b)
	}
	if snap.Summary.Total != 3 {
		t.Errorf("expected 3 events in window, got %d", snap.Summary.Total)
	}
	if len(snap.Providers) != 1 || snap.Providers[0].Provider != "unknown" || snap.Providers[0].Total != 3 {
		t.Errorf("unexpected provider breakdown: %+v", snap.Providers)
	}
}

func TestDashboard_FromFileFilterAndTable(t *testing.T) {
	path := writeEvents(t, eventsJSON)

	out, err := run(t, "dashboard", "--from-file", path, "--now", "2024-01-02T00:00:00Z", "--merchant", "other")
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if !strings.Contains(out, "total 1  approved 1  declined 0  success 100.0% good") {
		t.Errorf("unexpected summary in table output:\n%s", out)
	}
	if !strings.Contains(out, "20:00") {
		t.Errorf("expected bucket label 20:00 in output:\n%s", out)
	}
}

func TestDashboard_FromBackendPageYAML(t *testing.T) {
	path := writeEvents(t, `{"total":1,"transactions":[{"id":"1","date":"2024-01-01T23:55:00","failed":false}]}`)

	out, err := run(t, "dashboard", "--from-file", path, "--now", "2024-01-02T00:00:00Z", "-r", "1h", "-o", "yaml")
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	var doc struct {
		Buckets []struct {
			Label string `yaml:"label"`
			Total int    `yaml:"total"`
		} `yaml:"buckets"`
	}
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not yaml: %v", err)
	}
	if len(doc.Buckets) != 6 || doc.Buckets[5].Total != 1 || doc.Buckets[5].Label != "23:50" {
		t.Errorf("unexpected buckets: %+v", doc.Buckets)
	}
}

func TestHover_FromFile(t *testing.T) {
	path := writeEvents(t, eventsJSON)

	out, err := run(t, "hover", "--from-file", path, "--now", "2024-01-02T00:00:00Z", "--index", "13", "-o", "json")
	if err != nil {
		t.Fatalf("hover failed: %v", err)
	}
	var info curve.HoverInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatal(err)
	}
	if info.Total != 2 || info.SuccessRate != 50 || info.TotalPoint.Y != 5 {
		t.Errorf("unexpected hover: %+v", info)
	}

	if _, err := run(t, "hover", "--from-file", path, "--index", "24"); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestDashboard_Remote(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/dashboard" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"view":{"range":"last-hour"},"buckets":[{"index":0,"label":"23:00","total":4,"approved":4,"success_rate":100}],"summary":{"total":4,"approved":4,"success_rate":100,"health":"good","volume":"0"}}`))
	}))
	defer srv.Close()

	out, err := run(t, "dashboard", "--api-url", srv.URL, "-r", "1h", "--country", "MX")
	if err != nil {
		t.Fatalf("dashboard failed: %v", err)
	}
	if !strings.Contains(gotQuery, "range=last-hour") || !strings.Contains(gotQuery, "country=MX") {
		t.Errorf("unexpected query: %s", gotQuery)
	}
	if !strings.Contains(out, "23:00") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestDashboard_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"failed to load events"}`))
	}))
	defer srv.Close()

	_, err := run(t, "dashboard", "--api-url", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "failed to load events") {
		t.Errorf("expected API error, got %v", err)
	}
}

func TestChart_FromFile(t *testing.T) {
	path := writeEvents(t, eventsJSON)
	out := filepath.Join(t.TempDir(), "chart.svg")

	if _, err := run(t, "chart", "--from-file", path, "--now", "2024-01-02T00:00:00Z", "--out", out); err != nil {
		t.Fatalf("chart failed: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("<svg")) {
		t.Error("chart output is not SVG")
	}
}

func TestRoot_RejectsBadFlags(t *testing.T) {
	path := writeEvents(t, eventsJSON)
	if _, err := run(t, "dashboard", "--from-file", path, "-o", "xml"); err == nil {
		t.Error("expected error for unknown output format")
	}
	if _, err := run(t, "dashboard", "--from-file", path, "-r", "2w"); err == nil {
		t.Error("expected error for unknown range")
	}
	if _, err := run(t, "dashboard", "--from-file", path, "--timezone", "Nowhere/City"); err == nil {
		t.Error("expected error for unknown timezone")
	}
}
