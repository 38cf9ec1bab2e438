package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bashkirian/payment-health/internal/storage"
	"github.com/bashkirian/payment-health/pkg/models"
)

// ErrStale is returned by Refresh when a newer refresh was issued before this
// one could be applied.
var ErrStale = errors.New("refresh superseded by a newer request")

// Refresh outcomes reported to the RefreshObserver.
const (
	OutcomeApplied = "applied"
	OutcomeStale   = "stale"
	OutcomeError   = "error"
)

// RefreshObserver получает исход каждого обновления (метрики).
type RefreshObserver interface {
	Refreshed(r models.Range, outcome string, took time.Duration)
}

// Store хранит текущий отображаемый снимок и выдает токены поколений запросам.
//
// Каждый Refresh получает номер поколения при выдаче. Новый Refresh отменяет
// контекст предыдущей незавершенной выборки, и применить снимок может только
// последний выданный запрос. Фоновое обновление не перебивает выбор
// пользователя, пока тот не завершился.
type Store struct {
	src storage.Source
	now func() time.Time
	loc *time.Location
	log *slog.Logger
	obs RefreshObserver

	mu        sync.Mutex
	gen       uint64
	selecting uint64 // поколение незавершенного Refresh от пользователя, 0 если нет
	view      View
	cancel    context.CancelFunc
	current   *Snapshot
	subs      map[int]func(Snapshot)
	nextSub   int
	notifyMu  sync.Mutex
	notified  uint64
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the location used for bucket labels.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithObserver(o RefreshObserver) Option {
	return func(s *Store) { s.obs = o }
}

func NewStore(src storage.Source, initial View, opts ...Option) *Store {
	s := &Store{
		src:  src,
		now:  time.Now,
		loc:  time.UTC,
		log:  slog.Default(),
		view: initial,
		subs: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches and computes a snapshot for v without touching the displayed
// state. Used for ad-hoc queries that must not race the displayed view.
func (s *Store) Load(ctx context.Context, v View) (Snapshot, error) {
	now := s.now().In(s.loc)
	q, err := v.Query(now)
	if err != nil {
		return Snapshot{}, err
	}
	events, err := s.src.Events(ctx, q)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch events: %w", err)
	}
	return Compute(events, now, v)
}

// Refresh selects v as the displayed view and recomputes it. Only the most
// recently issued Refresh may apply its snapshot; an older one returns
// ErrStale, together with its snapshot when the fetch had completed.
func (s *Store) Refresh(ctx context.Context, v View) (Snapshot, error) {
	if _, ok := v.Range.Preset(); !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", models.ErrUnknownRange, v.Range)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	gen := s.issue(cancel)
	s.view = v
	s.selecting = gen
	s.mu.Unlock()
	defer s.settle(gen)

	return s.run(ctx, gen, v)
}

// refreshSelected recomputes the selected view. It yields to a selection
// that is still in flight and reports false without fetching anything.
func (s *Store) refreshSelected(ctx context.Context) (Snapshot, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.selecting != 0 {
		s.mu.Unlock()
		return Snapshot{}, false, nil
	}
	gen := s.issue(cancel)
	v := s.view
	s.mu.Unlock()
	defer s.settle(gen)

	snap, err := s.run(ctx, gen, v)
	return snap, true, err
}

// issue hands out the next generation and cancels the fetch it supersedes.
// Caller holds mu.
func (s *Store) issue(cancel context.CancelFunc) uint64 {
	s.gen++
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	return s.gen
}

func (s *Store) settle(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selecting == gen {
		s.selecting = 0
	}
	if s.gen == gen {
		s.cancel = nil
	}
}

func (s *Store) run(ctx context.Context, gen uint64, v View) (Snapshot, error) {
	start := time.Now()
	snap, err := s.Load(ctx, v)
	if err != nil {
		if s.superseded(gen) {
			s.observe(v.Range, OutcomeStale, start)
			return Snapshot{}, fmt.Errorf("%w: %v", ErrStale, err)
		}
		s.observe(v.Range, OutcomeError, start)
		s.log.Warn("dashboard refresh failed", "range", v.Range, "generation", gen, "err", err)
		return Snapshot{}, err
	}
	snap.Generation = gen

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.observe(v.Range, OutcomeStale, start)
		s.log.Debug("dropping stale snapshot", "range", v.Range, "generation", gen)
		return snap, ErrStale
	}
	s.current = &snap
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.observe(v.Range, OutcomeApplied, start)
	s.notify(snap, subs)
	return snap, nil
}

// Current returns the last applied snapshot.
func (s *Store) Current() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Snapshot{}, false
	}
	return *s.current, true
}

// View returns the most recently selected view.
func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Subscribe registers fn for every applied snapshot and returns a function
// that removes it. fn runs on the refreshing goroutine.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen != s.gen
}

// notify delivers in generation order; a snapshot older than one already
// delivered is skipped.
func (s *Store) notify(snap Snapshot, subs []func(Snapshot)) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.Generation <= s.notified {
		return
	}
	s.notified = snap.Generation
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) observe(r models.Range, outcome string, start time.Time) {
	if s.obs != nil {
		s.obs.Refreshed(r, outcome, time.Since(start))
	}
}
