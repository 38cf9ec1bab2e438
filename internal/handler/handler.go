package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/bashkirian/payment-health/internal/aggregator"
	"github.com/bashkirian/payment-health/internal/dashboard"
	"github.com/bashkirian/payment-health/internal/ingest"
	"github.com/bashkirian/payment-health/internal/render"
	"github.com/bashkirian/payment-health/pkg/models"
)

const maxBodyBytes = 1 << 20

// Wrapper оборачивает обработчик маршрута (метрики).
type Wrapper func(route string, next http.Handler) http.Handler

type Handler struct {
	proc         ingest.Processor
	store        *dashboard.Store
	defaultRange models.Range
	log          *slog.Logger
}

func New(proc ingest.Processor, store *dashboard.Store, defaultRange models.Range, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{proc: proc, store: store, defaultRange: defaultRange, log: log}
}

// Register вешает маршруты API на роутер.
func (h *Handler) Register(r *mux.Router, wrap Wrapper) {
	if wrap == nil {
		wrap = func(_ string, next http.Handler) http.Handler { return next }
	}
	route := func(path string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, wrap(path, fn)).Methods(methods...)
	}

	route("/health", h.HandleHealth, http.MethodGet)
	route("/api/events", h.HandlePostEvent, http.MethodPost)
	route("/api/dashboard", h.HandleDashboard, http.MethodGet)
	route("/api/dashboard/current", h.HandleCurrent, http.MethodGet)
	route("/api/dashboard/view", h.HandleSelectView, http.MethodPut, http.MethodPost)
	route("/api/dashboard/hover", h.HandleHover, http.MethodGet)
	route("/api/chart.png", h.chartHandler(render.FormatPNG), http.MethodGet)
	route("/api/chart.svg", h.chartHandler(render.FormatSVG), http.MethodGet)
}

// POST /api/events - отправить событие
func (h *Handler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Валидация, ID генерируется если не указан
	if err := ingest.Prepare(&event); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.proc.ProcessEvent(r.Context(), event, "http"); err != nil {
		if errors.Is(err, aggregator.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "event queue is full")
			return
		}
		h.log.Error("process event failed", "id", event.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     event.ID,
		"status": "accepted",
	})
}

// GET /api/dashboard - снимок для диапазона и фильтров из query
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/dashboard/current - последний примененный снимок
func (h *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.store.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PUT /api/dashboard/view - выбрать отображаемое представление
func (h *Handler) HandleSelectView(w http.ResponseWriter, r *http.Request) {
	view, err := h.parseView(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.store.Refresh(r.Context(), view)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, snap)
	case errors.Is(err, dashboard.ErrStale):
		writeError(w, http.StatusConflict, "superseded by a newer selection")
	default:
		h.upstreamError(w, err)
	}
}

// GET /api/dashboard/hover?index= - данные подсказки по индексу бакета
func (h *Handler) HandleHover(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	snap, ok := h.load(w, r)
	if !ok {
		return
	}
	info, found := snap.Hover(idx)
	if !found {
		writeError(w, http.StatusNotFound, "index out of range")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) chartHandler(f render.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := chartOptions(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		snap, ok := h.load(w, r)
		if !ok {
			return
		}

		var buf bytes.Buffer
		if err := render.Chart(&buf, snap, f, opts); err != nil {
			h.log.Error("render chart failed", "format", f, "err", err)
			writeError(w, http.StatusInternalServerError, "failed to render chart")
			return
		}
		w.Header().Set("Content-Type", f.ContentType())
		w.Header().Set("Cache-Control", "no-store")
		w.Write(buf.Bytes())
	}
}

// chartOptions читает width/height; пустое значение означает размер по умолчанию.
func chartOptions(r *http.Request) (render.Options, error) {
	var opts render.Options
	q := r.URL.Query()
	for name, dst := range map[string]*int{"width": &opts.Width, "height": &opts.Height} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid %s %q", name, raw)
		}
		*dst = v
	}
	return opts, opts.Validate()
}

// GET /health - healthcheck
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (dashboard.Snapshot, bool) {
	view, err := h.parseView(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return dashboard.Snapshot{}, false
	}
	snap, err := h.store.Load(r.Context(), view)
	if err != nil {
		h.upstreamError(w, err)
		return dashboard.Snapshot{}, false
	}
	return snap, true
}

func (h *Handler) parseView(r *http.Request) (dashboard.View, error) {
	q := r.URL.Query()
	rng := h.defaultRange
	if s := q.Get("range"); s != "" {
		parsed, err := models.ParseRange(s)
		if err != nil {
			return dashboard.View{}, err
		}
		rng = parsed
	}
	return dashboard.View{
		Range: rng,
		Filter: models.Filter{
			Merchant:      q.Get("merchant"),
			Provider:      q.Get("provider"),
			Country:       q.Get("country"),
			PaymentMethod: q.Get("payment_method"),
		},
	}, nil
}

func (h *Handler) upstreamError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrUnknownRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.log.Error("load events failed", "err", err)
	writeError(w, http.StatusBadGateway, "failed to load events")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
