package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Range - выбранный на дашборде временной диапазон.
type Range string

const (
	RangeLastHour    Range = "last-hour"
	RangeLast24Hours Range = "last-24-hours"
	RangeLast7Days   Range = "last-7-days"
)

var ErrUnknownRange = errors.New("unknown time range")

// RangePreset fixes the total span and how many buckets it is cut into.
type RangePreset struct {
	Span  time.Duration
	Count int
}

// Interval is the width of a single bucket.
func (p RangePreset) Interval() time.Duration {
	if p.Count <= 0 {
		return 0
	}
	return p.Span / time.Duration(p.Count)
}

var presets = map[Range]RangePreset{
	RangeLastHour:    {Span: time.Hour, Count: 6},
	RangeLast24Hours: {Span: 24 * time.Hour, Count: 24},
	RangeLast7Days:   {Span: 7 * 24 * time.Hour, Count: 7},
}

var rangeAliases = map[string]Range{
	"1h":  RangeLastHour,
	"24h": RangeLast24Hours,
	"7d":  RangeLast7Days,
}

// Ranges lists the presets in display order.
func Ranges() []Range {
	return []Range{RangeLastHour, RangeLast24Hours, RangeLast7Days}
}

// Preset returns the span/count pair for a known range.
func (r Range) Preset() (RangePreset, bool) {
	p, ok := presets[r]
	return p, ok
}

func (r Range) String() string { return string(r) }

// ParseRange accepts canonical names and the short aliases 1h, 24h, 7d.
func ParseRange(s string) (Range, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if r, ok := rangeAliases[key]; ok {
		return r, nil
	}
	if _, ok := presets[Range(key)]; ok {
		return Range(key), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRange, s)
}
