package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bucket - агрегат транзакций за один интервал.
type Bucket struct {
	Index       int       `json:"index" yaml:"index"`
	Start       time.Time `json:"start" yaml:"start"`
	Label       string    `json:"label" yaml:"label"`
	Approved    int       `json:"approved" yaml:"approved"`
	Declined    int       `json:"declined" yaml:"declined"`
	Total       int       `json:"total" yaml:"total"`
	SuccessRate float64   `json:"success_rate" yaml:"success_rate"`
}

// Health - класс успешности, по которому раскрашиваются графики и бейджи.
type Health string

const (
	HealthGood     Health = "good"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Summary - итог по всему окну.
type Summary struct {
	Total        int             `json:"total" yaml:"total"`
	Approved     int             `json:"approved" yaml:"approved"`
	Declined     int             `json:"declined" yaml:"declined"`
	SuccessRate  float64         `json:"success_rate" yaml:"success_rate"`
	Health       Health          `json:"health" yaml:"health"`
	Volume       decimal.Decimal `json:"volume" yaml:"volume"`
	AvgLatencyMs float64         `json:"avg_latency_ms" yaml:"avg_latency_ms"`
}

// ProviderSummary - итог окна по одному платежному провайдеру.
type ProviderSummary struct {
	Provider    string          `json:"provider" yaml:"provider"`
	Total       int             `json:"total" yaml:"total"`
	Approved    int             `json:"approved" yaml:"approved"`
	Declined    int             `json:"declined" yaml:"declined"`
	SuccessRate float64         `json:"success_rate" yaml:"success_rate"`
	Health      Health          `json:"health" yaml:"health"`
	Volume      decimal.Decimal `json:"volume" yaml:"volume"`
}
