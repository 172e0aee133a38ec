// Package server exposes the persisted statistics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/naka-gawa/loc-stats/internal/cache"
	"github.com/naka-gawa/loc-stats/internal/domain"
	"github.com/naka-gawa/loc-stats/internal/metrics"
	"github.com/naka-gawa/loc-stats/internal/render"
	"github.com/naka-gawa/loc-stats/internal/usecase"
)

// Handler is the container for API dependencies.
type Handler struct {
	store    cache.Store
	recorder *metrics.Recorder
	title    string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewRouter creates a chi router serving the aggregate of whatever store
// currently holds. Every request re-reads the store.
func NewRouter(store cache.Store, recorder *metrics.Recorder, title string, now func() time.Time, logger zerolog.Logger) http.Handler {
	h := &Handler{store: store, recorder: recorder, title: title, now: now, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(logger))

	r.Get("/healthz", h.healthCheck)
	r.Get("/badge.svg", h.badge)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/summary", h.summary)
	})
	r.Handle("/metrics", promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}))
	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// summary returns the aggregate and the cache timestamp.
// GET /api/v1/summary
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	result := h.aggregate(c)

	body := struct {
		LastUpdated  *time.Time             `json:"last_updated,omitempty"`
		Repositories int                    `json:"repositories"`
		Windows      domain.AggregateResult `json:"windows"`
	}{Repositories: len(c.Repos), Windows: result}
	if !c.LastUpdated.IsZero() {
		body.LastUpdated = &c.LastUpdated
	}
	respondWithJSON(w, http.StatusOK, body)
}

// badge renders the SVG card.
// GET /badge.svg
func (h *Handler) badge(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	svg, err := render.SVG(h.aggregate(c), h.title)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to render badge")
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(svg)
}

// load reads the cache, answering 503 when the store cannot be read.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (domain.Cache, bool) {
	c, err := h.store.Load(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load cache")
		respondWithError(w, http.StatusServiceUnavailable, "Cache unavailable")
		return domain.Cache{}, false
	}
	return c, true
}

func (h *Handler) aggregate(c domain.Cache) domain.AggregateResult {
	result := usecase.Aggregate(c, h.now())
	h.recorder.SetAggregate(result)
	return result
}

// Run serves handler on addr until ctx is cancelled.
func Run(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("bytes", ww.BytesWritten()).
				Msg("request done")
		})
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
