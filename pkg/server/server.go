// pkg/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/bashkirian/payment-health/internal/aggregator"
	"github.com/bashkirian/payment-health/internal/backend"
	"github.com/bashkirian/payment-health/internal/config"
	"github.com/bashkirian/payment-health/internal/dashboard"
	"github.com/bashkirian/payment-health/internal/handler"
	"github.com/bashkirian/payment-health/internal/ingest"
	"github.com/bashkirian/payment-health/internal/observability"
	"github.com/bashkirian/payment-health/internal/storage"
	"github.com/bashkirian/payment-health/pkg/models"
)

const pruneEvery = time.Hour

type Server struct {
	httpServer *http.Server
	aggregator *aggregator.Aggregator
	dashboard  *dashboard.Store
	consumer   *ingest.KafkaConsumer
	metrics    *observability.Metrics
	closers    []io.Closer
	refresh    time.Duration
	log        *slog.Logger
	accessLog  io.Writer
	ctx        context.Context // живет до Shutdown, на нем работают фоновые задачи
	stop       context.CancelFunc
}

type Option func(*Server)

// WithAccessLog задает, куда пишется access log (по умолчанию stdout).
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) { s.accessLog = w }
}

// NewServer собирает хранилище, агрегатор, дашборд и HTTP-роутер по конфигу.
func NewServer(cfg *config.Config, log *slog.Logger, opts ...Option) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		metrics:   observability.NewMetrics(),
		refresh:   cfg.Dashboard.RefreshInterval,
		log:       log,
		accessLog: os.Stdout,
	}
	s.ctx, s.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}

	sink, source, err := s.buildStorage(cfg)
	if err != nil {
		return nil, err
	}

	defRange, err := cfg.DefaultRange()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	s.aggregator = aggregator.New(sink, cfg.Ingest.BufferSize,
		aggregator.WithLogger(log.With("component", "aggregator")),
		aggregator.WithObserver(s.metrics),
		aggregator.WithRetention(cfg.Ingest.Retention, pruneEvery),
	)

	s.dashboard = dashboard.NewStore(source, dashboard.View{Range: defRange},
		dashboard.WithLocation(loc),
		dashboard.WithLogger(log.With("component", "dashboard")),
		dashboard.WithObserver(s.metrics),
	)
	s.dashboard.Subscribe(s.metrics.ObserveSnapshot)

	if cfg.KafkaEnabled() {
		consumer, err := ingest.NewKafkaConsumer(ingest.KafkaConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			GroupID:     cfg.Kafka.GroupID,
			PollTimeout: cfg.Kafka.PollTimeout,
		}, s.aggregator, log.With("component", "kafka"))
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		s.consumer = consumer
		s.closers = append(s.closers, consumer)
	}

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      s.routes(cfg, defRange),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

func (s *Server) buildStorage(cfg *config.Config) (storage.Sink, storage.Source, error) {
	switch kind := cfg.SourceKind(); kind {
	case config.SourceRedis:
		// Используем Redis хранилище
		store := storage.NewRedisStorageWithKey(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			s.log.Warn("redis is not reachable yet", "addr", cfg.Redis.Addr, "err", err)
		}
		s.closers = append(s.closers, store)
		s.log.Info("using redis storage", "addr", cfg.Redis.Addr, "key", cfg.Redis.Key)
		return store, store, nil
	case config.SourceBackend:
		// события из REST API бэкенда плюс принятые этим сервисом
		local := storage.NewInMemoryStorage()
		client := backend.New(cfg.Backend.BaseURL,
			backend.WithPageSize(cfg.Backend.PageSize),
			backend.WithHTTPClient(backend.NewHTTPClient(cfg.Backend.Timeout)),
			backend.WithLogger(s.log.With("component", "backend")),
		)
		s.log.Info("using backend source", "base_url", cfg.Backend.BaseURL)
		return local, storage.Merged(client, local), nil
	case config.SourceMemory:
		// Используем in-memory хранилище по умолчанию
		store := storage.NewInMemoryStorage()
		s.log.Info("using in-memory storage")
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

func (s *Server) routes(cfg *config.Config, defRange models.Range) http.Handler {
	r := mux.NewRouter()
	h := handler.New(s.aggregator, s.dashboard, defRange, s.log.With("component", "http"))
	h.Register(r, s.metrics.WrapHandler)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError)),
	)
	return handlers.LoggingHandler(s.accessLog, recovery(cors(r)))
}

// Handler отдает корневой HTTP-обработчик (для тестов и встраивания).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Dashboard отдает хранилище снимков.
func (s *Server) Dashboard() *dashboard.Store {
	return s.dashboard
}

// startBackground запускает агрегатор, фоновое обновление дашборда и Kafka.
func (s *Server) startBackground() {
	ctx := s.ctx
	s.aggregator.Start(ctx)
	s.dashboard.Start(ctx, s.refresh)
	if s.consumer != nil {
		go func() {
			if err := s.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("kafka consumer exited", "err", err)
			}
		}()
	}
}

func (s *Server) Start() error {
	s.startBackground()
	s.log.Info("server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()
	err := s.httpServer.Shutdown(ctx)
	for _, c := range s.closers {
		if cerr := c.Close(); cerr != nil {
			s.log.Warn("close failed", "err", cerr)
		}
	}
	return err
}
