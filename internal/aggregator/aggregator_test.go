package aggregator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bashkirian/payment-health/internal/storage"
	"github.com/bashkirian/payment-health/pkg/models"
)

type countingObserver struct {
	mu  sync.Mutex
	ok  int
	bad int
}

func (o *countingObserver) EventStored(_ string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.ok++
	} else {
		o.bad++
	}
}

func (o *countingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ok, o.bad
}

type failingSink struct{}

func (failingSink) AddEvent(context.Context, models.Event) error { return errors.New("boom") }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAggregator_ProcessEvent(t *testing.T) {
	store := storage.NewInMemoryStorage()
	obs := &countingObserver{}
	agg := New(store, 10, WithLogger(quietLogger()), WithObserver(obs))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg.Start(ctx)

	event := models.Event{
		ID:       "test-1",
		Merchant: "acme",
		Date:     models.At(time.Now()),
	}

	if err := agg.ProcessEvent(ctx, event, "http"); err != nil {
		t.Fatalf("Failed to process event: %v", err)
	}

	// Даем время на обработку
	time.Sleep(100 * time.Millisecond)

	events, _ := store.Events(ctx, models.Query{})
	if len(events) != 1 {
		t.Fatalf("Expected 1 stored event, got %d", len(events))
	}
	if ok, _ := obs.counts(); ok != 1 {
		t.Errorf("Expected observer to see 1 stored event, got %d", ok)
	}
}

func TestAggregator_MultipleEvents(t *testing.T) {
	store := storage.NewInMemoryStorage()
	agg := New(store, 100, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg.Start(ctx)

	now := time.Now()
	events := []models.Event{
		{ID: "1", Date: models.At(now)},
		{ID: "2", Date: models.At(now)},
		{ID: "3", Date: models.At(now)},
	}

	for _, e := range events {
		if err := agg.ProcessEvent(ctx, e, "http"); err != nil {
			t.Fatalf("Failed to process event: %v", err)
		}
	}

	time.Sleep(100 * time.Millisecond)

	if store.Len() != 3 {
		t.Errorf("Expected 3 events, got %d", store.Len())
	}
}

func TestAggregator_SinkFailureIsObserved(t *testing.T) {
	obs := &countingObserver{}
	agg := New(failingSink{}, 10, WithLogger(quietLogger()), WithObserver(obs))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	agg.Start(ctx)

	if err := agg.ProcessEvent(ctx, models.Event{ID: "x", Date: models.At(time.Now())}, "kafka"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, bad := obs.counts(); bad != 1 {
		t.Errorf("Expected 1 failed store, got %d", bad)
	}
}

func TestAggregator_QueueFull(t *testing.T) {
	agg := New(storage.NewInMemoryStorage(), 1, WithLogger(quietLogger()))
	agg.enqueueTimeout = 20 * time.Millisecond
	ctx := context.Background()

	// worker не запущен, второй вызов упирается в буфер
	if err := agg.ProcessEvent(ctx, models.Event{ID: "1"}, "http"); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if err := agg.ProcessEvent(ctx, models.Event{ID: "2"}, "http"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
}

func TestAggregator_Prune(t *testing.T) {
	store := storage.NewInMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	store.AddEvent(ctx, models.Event{ID: "old", Date: models.At(now.Add(-30 * 24 * time.Hour))})
	store.AddEvent(ctx, models.Event{ID: "fresh", Date: models.At(now)})

	agg := New(store, 10, WithLogger(quietLogger()), WithRetention(8*24*time.Hour, 10*time.Millisecond))
	agg.Start(ctx)

	time.Sleep(100 * time.Millisecond)

	if store.Len() != 1 {
		t.Errorf("Expected old event to be pruned, %d left", store.Len())
	}
}
