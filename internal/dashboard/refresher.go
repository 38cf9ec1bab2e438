package dashboard

import (
	"context"
	"time"
)

// Start запускает фоновое обновление выбранного представления.
// Первое обновление выполняется сразу, затем по тикеру.
func (s *Store) Start(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		s.refreshView(ctx)
		for {
			select {
			case <-ticker.C:
				s.refreshView(ctx)
			case <-ctx.Done():
				s.log.Info("dashboard refresher stopping")
				return
			}
		}
	}()
}

// refreshView ошибки уже залогированы в run.
func (s *Store) refreshView(ctx context.Context) {
	if _, ran, _ := s.refreshSelected(ctx); !ran {
		s.log.Debug("skipping background refresh, a view selection is in flight")
	}
}
