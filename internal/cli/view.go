package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bashkirian/payment-health/internal/dashboard"
	"github.com/bashkirian/payment-health/pkg/models"
)

func addViewFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("range", "r", "24h", "time range: 1h, 24h, 7d")
	f.String("merchant", "", "filter by merchant")
	f.String("provider", "", "filter by provider")
	f.String("country", "", "filter by country")
	f.String("payment-method", "", "filter by payment method")
	f.String("from-file", "", "compute locally from a JSON file of events instead of calling the server")
	f.String("now", "", "end of the window for --from-file (RFC3339, default: current time)")
}

func viewFromFlags(cmd *cobra.Command) (dashboard.View, error) {
	f := cmd.Flags()
	rs, _ := f.GetString("range")
	r, err := models.ParseRange(rs)
	if err != nil {
		return dashboard.View{}, err
	}
	v := dashboard.View{Range: r}
	v.Filter.Merchant, _ = f.GetString("merchant")
	v.Filter.Provider, _ = f.GetString("provider")
	v.Filter.Country, _ = f.GetString("country")
	v.Filter.PaymentMethod, _ = f.GetString("payment-method")
	return v, nil
}

func viewQuery(v dashboard.View) url.Values {
	q := url.Values{}
	q.Set("range", string(v.Range))
	set := func(k, val string) {
		if val != "" {
			q.Set(k, val)
		}
	}
	set("merchant", v.Filter.Merchant)
	set("provider", v.Filter.Provider)
	set("country", v.Filter.Country)
	set("payment_method", v.Filter.PaymentMethod)
	return q
}

// snapshot loads the view either from the server or from --from-file.
func (a *app) snapshot(cmd *cobra.Command) (dashboard.Snapshot, error) {
	v, err := viewFromFlags(cmd)
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	file, _ := cmd.Flags().GetString("from-file")
	if file == "" {
		var snap dashboard.Snapshot
		err := a.client().getJSON(cmd.Context(), "/api/dashboard", viewQuery(v), &snap)
		return snap, err
	}

	loc, err := a.location()
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	now := time.Now().In(loc)
	if s, _ := cmd.Flags().GetString("now"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return dashboard.Snapshot{}, fmt.Errorf("invalid --now %q: %w", s, err)
		}
		now = t.In(loc)
	}

	events, err := readEvents(file)
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	q, err := v.Query(now)
	if err != nil {
		return dashboard.Snapshot{}, err
	}
	kept := events[:0]
	for _, e := range events {
		if q.Filter.Match(e) {
			kept = append(kept, e)
		}
	}
	return dashboard.Compute(kept, now, v)
}

// readEvents accepts a JSON array of events or a backend page
// ({"transactions": [...]}).
func readEvents(path string) ([]models.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var page struct {
			Transactions []models.Event `json:"transactions"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return page.Transactions, nil
	}
	var events []models.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return events, nil
}
