// Package api exposes the read-only HTTP surface over the recall store:
// health and readiness probes, Prometheus metrics, summary aggregates, recent
// recalls, and the rendered chart files.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gracepitts/fda-recalls/internal/metrics"
	"github.com/gracepitts/fda-recalls/internal/store"
)

const (
	defaultRecallLimit = 50
	maxRecallLimit     = 500
)

// Server wires HTTP handlers to the recall store.
type Server struct {
	router    chi.Router
	store     store.Store
	chartsDir string
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. chartsDir may be
// empty, which disables the /charts routes.
func NewServer(st store.Store, chartsDir string, logger *zap.Logger) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("api: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{store: st, chartsDir: chartsDir, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/summary", s.getSummary)
		r.Get("/recalls", s.getRecentRecalls)
	})

	if chartsDir != "" {
		r.Handle("/charts/*", http.StripPrefix("/charts/", http.FileServer(http.Dir(chartsDir))))
	}

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz fails until the store answers a query, so load balancers do not
// route traffic while migrations are still running.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountRecalls(r.Context()); err != nil {
		writeError(s.logger, w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

// summaryResponse is the aggregate view served at /v1/summary.
type summaryResponse struct {
	TotalRecalls      int64              `json:"total_recalls"`
	ByProductType     []store.TypeCount  `json:"by_product_type"`
	ByClassification  []store.ClassCount `json:"by_classification"`
	YearlyCounts      []store.YearCount  `json:"yearly_counts"`
	TopRecallingFirms []store.FirmCount  `json:"top_recalling_firms"`
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	total, err := s.store.CountRecalls(ctx)
	if err != nil {
		s.storeError(w, "count recalls", err)
		return
	}
	byType, err := s.store.CountsByProductType(ctx)
	if err != nil {
		s.storeError(w, "counts by product type", err)
		return
	}
	byClass, err := s.store.CountsByClassification(ctx)
	if err != nil {
		s.storeError(w, "counts by classification", err)
		return
	}
	yearly, err := s.store.YearlyCounts(ctx)
	if err != nil {
		s.storeError(w, "yearly counts", err)
		return
	}
	firms, err := s.store.TopFirms(ctx, 10)
	if err != nil {
		s.storeError(w, "top firms", err)
		return
	}

	writeJSON(s.logger, w, http.StatusOK, summaryResponse{
		TotalRecalls:      total,
		ByProductType:     byType,
		ByClassification:  byClass,
		YearlyCounts:      yearly,
		TopRecallingFirms: firms,
	})
}

func (s *Server) getRecentRecalls(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecallLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(s.logger, w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxRecallLimit {
		limit = maxRecallLimit
	}

	rows, err := s.store.RecentRecalls(r.Context(), limit)
	if err != nil {
		s.storeError(w, "recent recalls", err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"count":   len(rows),
		"recalls": rows,
	})
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("store query failed", zap.String("op", op), zap.Error(err))
	writeError(s.logger, w, http.StatusInternalServerError, "query failed")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(s.logger, w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
