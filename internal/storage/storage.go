package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bashkirian/payment-health/pkg/models"
)

// Source отдает события за период. Реализуется хранилищами и REST-клиентом бэкенда.
type Source interface {
	Events(ctx context.Context, q models.Query) ([]models.Event, error)
}

// Sink принимает новые события.
type Sink interface {
	AddEvent(ctx context.Context, event models.Event) error
}

// Storage - хранилище, в которое пишет ингест и из которого читает дашборд.
type Storage interface {
	Source
	Sink
}

// Pruner drops events older than the cutoff and reports how many were removed.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

type InMemoryStorage struct {
	mu     sync.RWMutex
	events []models.Event
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		events: make([]models.Event, 0),
	}
}

func (s *InMemoryStorage) AddEvent(_ context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the matching events in insertion order.
func (s *InMemoryStorage) Events(ctx context.Context, q models.Query) ([]models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]models.Event, 0)
	for _, e := range s.events {
		if q.Match(e) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (s *InMemoryStorage) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	for _, e := range s.events {
		if e.Date.Valid && e.Date.Time.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(s.events) - len(kept)
	// Копируем, чтобы не держать старый массив
	s.events = append([]models.Event(nil), kept...)
	return removed, nil
}

// Len - количество событий в памяти.
func (s *InMemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Merged читает из нескольких источников и склеивает результат.
// Первая ошибка прерывает чтение.
func Merged(sources ...Source) Source {
	return merged(sources)
}

type merged []Source

func (m merged) Events(ctx context.Context, q models.Query) ([]models.Event, error) {
	var out []models.Event
	for _, src := range m {
		events, err := src.Events(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, events...)
	}
	return out, nil
}
