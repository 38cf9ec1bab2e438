package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/bashkirian/payment-health/pkg/models"
)

func setupRedisStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStorageWithKey(mr.Addr(), "", 0, "test:events")
	t.Cleanup(func() { s.Close() })
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	return s, mr
}

func TestRedisStorage_EventsWindow(t *testing.T) {
	s, _ := setupRedisStorage(t)
	ctx := context.Background()
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	for id, ts := range map[string]time.Time{
		"before": from.Add(-time.Millisecond),
		"from":   from,
		"mid":    from.Add(30 * time.Minute),
		"to":     to,
		"after":  to.Add(time.Millisecond),
	} {
		if err := s.AddEvent(ctx, models.Event{ID: id, Date: models.At(ts)}); err != nil {
			t.Fatalf("AddEvent %s: %v", id, err)
		}
	}

	events, err := s.Events(ctx, models.Query{From: from, To: to})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	if len(ids) != 3 || ids[0] != "from" || ids[1] != "mid" || ids[2] != "to" {
		t.Errorf("Expected [from mid to] in score order, got %v", ids)
	}

	all, err := s.Events(ctx, models.Query{})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Expected 5 events with open bounds, got %d", len(all))
	}
}

func TestRedisStorage_EventsWithFilters(t *testing.T) {
	s, _ := setupRedisStorage(t)
	ctx := context.Background()
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s.AddEvent(ctx, models.Event{ID: "1", Date: models.At(ts), Merchant: "Acme", Country: "MX"})
	s.AddEvent(ctx, models.Event{ID: "2", Date: models.At(ts.Add(time.Second)), Merchant: "Acme", Country: "BR"})
	s.AddEvent(ctx, models.Event{ID: "3", Date: models.At(ts.Add(2 * time.Second)), Merchant: "Other", Country: "MX"})

	events, err := s.Events(ctx, models.Query{Filter: models.Filter{Merchant: "acme", Country: "mx"}})
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 1 || events[0].ID != "1" {
		t.Errorf("Expected only event 1, got %+v", events)
	}
}

func TestRedisStorage_Prune(t *testing.T) {
	s, mr := setupRedisStorage(t)
	ctx := context.Background()
	cutoff := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s.AddEvent(ctx, models.Event{ID: "old", Date: models.At(cutoff.Add(-time.Hour))})
	s.AddEvent(ctx, models.Event{ID: "edge", Date: models.At(cutoff)})
	s.AddEvent(ctx, models.Event{ID: "new", Date: models.At(cutoff.Add(time.Hour))})

	n, err := s.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 pruned event, got %d", n)
	}

	members, err := mr.ZMembers("test:events")
	if err != nil {
		t.Fatalf("ZMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("Expected 2 members left, got %d", len(members))
	}
	left, _ := s.Events(ctx, models.Query{})
	if len(left) != 2 || left[0].ID != "edge" || left[1].ID != "new" {
		t.Errorf("event at the cutoff must survive, got %+v", left)
	}
}

func TestRedisStorage_AddEventRequiresDate(t *testing.T) {
	s, _ := setupRedisStorage(t)
	if err := s.AddEvent(context.Background(), models.Event{ID: "x"}); !errors.Is(err, errNoDate) {
		t.Errorf("Expected errNoDate, got %v", err)
	}
}

func TestRedisStorage_ServerDown(t *testing.T) {
	s, mr := setupRedisStorage(t)
	mr.Close()
	if _, err := s.Events(context.Background(), models.Query{}); err == nil {
		t.Error("Expected error when redis is unreachable")
	}
}
