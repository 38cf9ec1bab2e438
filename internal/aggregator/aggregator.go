package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bashkirian/payment-health/internal/storage"
	"github.com/bashkirian/payment-health/pkg/models"
)

var ErrQueueFull = errors.New("timeout adding event to queue")

// Observer получает уведомления о сохраненных событиях (метрики).
type Observer interface {
	EventStored(source string, ok bool)
}

// Aggregator принимает события через буферизованный канал и пишет их в хранилище.
type Aggregator struct {
	sink           storage.Sink
	eventChan      chan queued
	bufferSize     int
	enqueueTimeout time.Duration
	retention      time.Duration
	pruneEvery     time.Duration
	log            *slog.Logger
	obs            Observer
}

type queued struct {
	event  models.Event
	source string
}

type Option func(*Aggregator)

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

func WithObserver(o Observer) Option {
	return func(a *Aggregator) { a.obs = o }
}

// WithRetention enables periodic pruning when the sink implements storage.Pruner.
func WithRetention(retention, every time.Duration) Option {
	return func(a *Aggregator) {
		a.retention = retention
		a.pruneEvery = every
	}
}

func New(sink storage.Sink, bufferSize int, opts ...Option) *Aggregator {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	a := &Aggregator{
		sink:           sink,
		eventChan:      make(chan queued, bufferSize),
		bufferSize:     bufferSize,
		enqueueTimeout: 5 * time.Second,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start запускает обработку событий
func (a *Aggregator) Start(ctx context.Context) {
	go func() {
		var prune <-chan time.Time
		pruner, canPrune := a.sink.(storage.Pruner)
		if canPrune && a.retention > 0 && a.pruneEvery > 0 {
			ticker := time.NewTicker(a.pruneEvery)
			defer ticker.Stop()
			prune = ticker.C
		}
		for {
			select {
			case q := <-a.eventChan:
				a.processEvent(ctx, q)
			case now := <-prune:
				a.prune(ctx, pruner, now)
			case <-ctx.Done():
				a.log.Info("aggregator stopping")
				return
			}
		}
	}()
}

// ProcessEvent добавляет событие в очередь
func (a *Aggregator) ProcessEvent(ctx context.Context, event models.Event, source string) error {
	timer := time.NewTimer(a.enqueueTimeout)
	defer timer.Stop()
	select {
	case a.eventChan <- queued{event: event, source: source}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrQueueFull
	}
}

func (a *Aggregator) processEvent(ctx context.Context, q queued) {
	err := a.sink.AddEvent(ctx, q.event)
	if a.obs != nil {
		a.obs.EventStored(q.source, err == nil)
	}
	if err != nil {
		a.log.Error("store event failed", "id", q.event.ID, "source", q.source, "err", err)
		return
	}
	a.log.Debug("processed event",
		"id", q.event.ID,
		"source", q.source,
		"merchant", q.event.Merchant,
		"provider", q.event.Provider,
		"date", q.event.Date.Time,
	)
}

func (a *Aggregator) prune(ctx context.Context, p storage.Pruner, now time.Time) {
	removed, err := p.Prune(ctx, now.Add(-a.retention))
	if err != nil {
		a.log.Warn("prune failed", "err", err)
		return
	}
	if removed > 0 {
		a.log.Info("pruned events", "removed", removed, "retention", a.retention)
	}
}
