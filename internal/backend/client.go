// Package backend reads transaction events from the payments analytics API.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bashkirian/payment-health/pkg/models"
)

const (
	eventsPath      = "/analytics/events/all"
	DefaultPageSize = 500
	DefaultTimeout  = 15 * time.Second
	maxPages        = 1000
)

type page struct {
	Total        int            `json:"total"`
	Skip         int            `json:"skip"`
	Limit        *int           `json:"limit"`
	Transactions []models.Event `json:"transactions"`
}

// Client implements storage.Source on top of GET /analytics/events/all.
type Client struct {
	base     string
	pageSize int
	h        *http.Client
	log      *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.h = h }
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(base string, opts ...Option) *Client {
	c := &Client{
		base:     strings.TrimRight(base, "/"),
		pageSize: DefaultPageSize,
		h:        NewHTTPClient(DefaultTimeout),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Events pages through the API until total is reached or a page comes back
// empty. The payment method filter is applied by the API after paging, so a
// short page does not mean the end of the result set.
func (c *Client) Events(ctx context.Context, q models.Query) ([]models.Event, error) {
	var out []models.Event
	skip := 0
	for i := 0; i < maxPages; i++ {
		p, err := c.fetchPage(ctx, q, skip)
		if err != nil {
			return nil, err
		}
		for _, e := range p.Transactions {
			if q.Match(e) {
				out = append(out, e)
			}
		}

		limit := c.pageSize
		if p.Limit != nil && *p.Limit > 0 {
			limit = *p.Limit
		}
		skip += limit

		if len(p.Transactions) == 0 || skip >= p.Total {
			c.log.Debug("fetched events", "count", len(out), "total", p.Total, "pages", i+1)
			return out, nil
		}
	}
	return nil, fmt.Errorf("backend: more than %d pages for %s", maxPages, eventsPath)
}

func (c *Client) fetchPage(ctx context.Context, q models.Query, skip int) (*page, error) {
	u, err := url.Parse(c.base + eventsPath)
	if err != nil {
		return nil, err
	}
	u.RawQuery = c.params(q, skip).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("backend %s returned %d: %s", u.Path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", u.Path, err)
	}
	if p.Transactions == nil {
		return nil, fmt.Errorf("backend %s returned response without transactions", u.Path)
	}
	return &p, nil
}

func (c *Client) params(q models.Query, skip int) url.Values {
	v := url.Values{}
	if !q.From.IsZero() {
		v.Set("start_date", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("end_date", q.To.UTC().Format(time.RFC3339))
	}
	setIf(v, "merchant", q.Filter.Merchant)
	setIf(v, "provider", q.Filter.Provider)
	setIf(v, "country", q.Filter.Country)
	setIf(v, "payment_method", q.Filter.PaymentMethod)
	v.Set("skip", strconv.Itoa(skip))
	v.Set("limit", strconv.Itoa(c.pageSize))
	return v
}

func setIf(v url.Values, key, val string) {
	if val = strings.TrimSpace(val); val != "" {
		v.Set(key, val)
	}
}
