package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event представляет одну платежную транзакцию, полученную от бэкенда.
// Upstream data is heterogeneous, so Date, Failed and Approved decode leniently.
type Event struct {
	ID             string              `json:"id"`
	Date           Timestamp           `json:"date"`
	Failed         Flag                `json:"failed"`
	Approved       Flag                `json:"approved"`
	StatusCategory string              `json:"status_category,omitempty"`
	Merchant       string              `json:"merchant_name,omitempty"`
	Provider       string              `json:"provider,omitempty"`
	Country        string              `json:"country,omitempty"`
	PaymentMethod  string              `json:"payment_method,omitempty"`
	Amount         decimal.NullDecimal `json:"amount"`
	Currency       string              `json:"currency,omitempty"`
	LatencyMs      *int64              `json:"latency_ms,omitempty"`
}

// Timestamp - момент времени события; Valid=false если значение не распарсилось.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

// At wraps a known time.
func At(t time.Time) Timestamp {
	return Timestamp{Time: t, Valid: true}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339 with or without zone (zone-less values are UTC)
// and unix epoch milliseconds written as a string.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// UnmarshalJSON never fails: an unusable value leaves the timestamp invalid.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	*t = Timestamp{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		t.Time, t.Valid = ParseTimestamp(s)
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	t.Time, t.Valid = time.UnixMilli(int64(f)).UTC(), true
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Flag - булев признак, который может отсутствовать.
type Flag struct {
	Set   bool
	Value bool
}

// FlagOf returns a set flag.
func FlagOf(v bool) Flag {
	return Flag{Set: true, Value: v}
}

// ParseFlag recognises bool-like strings. Anything else is reported as not set.
func ParseFlag(s string) Flag {
	switch s {
	case "true", "True", "1":
		return FlagOf(true)
	case "false", "False", "0":
		return FlagOf(false)
	}
	return Flag{}
}

// UnmarshalJSON accepts true/false, "true"/"True"/"1", "false"/"False"/"0" and 1/0.
// Unrecognised values decode as not set instead of failing the whole event.
func (f *Flag) UnmarshalJSON(b []byte) error {
	*f = Flag{}
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "", "null":
		return nil
	case "true":
		*f = FlagOf(true)
		return nil
	case "false":
		*f = FlagOf(false)
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*f = ParseFlag(s)
		}
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	switch n {
	case 1:
		*f = FlagOf(true)
	case 0:
		*f = FlagOf(false)
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Filter - категориальные фильтры, которые применяются до агрегации.
type Filter struct {
	Merchant      string `json:"merchant,omitempty" yaml:"merchant,omitempty"`
	Provider      string `json:"provider,omitempty"`
	Country       string `json:"country,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
}

// Match compares case-insensitively; empty filter fields match everything.
func (f Filter) Match(e Event) bool {
	return matchField(f.Merchant, e.Merchant) &&
		matchField(f.Provider, e.Provider) &&
		matchField(f.Country, e.Country) &&
		matchField(f.PaymentMethod, e.PaymentMethod)
}

func matchField(want, got string) bool {
	return want == "" || strings.EqualFold(strings.TrimSpace(want), strings.TrimSpace(got))
}

// Query - запрос событий за период [From, To] с фильтрами.
type Query struct {
	From   time.Time
	To     time.Time
	Filter Filter
}

// Contains reports whether t is inside [From, To]. Zero bounds are open.
func (q Query) Contains(t time.Time) bool {
	if !q.From.IsZero() && t.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && t.After(q.To) {
		return false
	}
	return true
}

// Match combines the time window and the categorical filter. Events with an
// invalid date are kept so the bucketer can account for them itself.
func (q Query) Match(e Event) bool {
	if e.Date.Valid && !q.Contains(e.Date.Time) {
		return false
	}
	return q.Filter.Match(e)
}
