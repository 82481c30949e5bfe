// Package api serves curated records and the run log over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/decision-curator/internal/ident"
	"github.com/sells-group/decision-curator/internal/model"
	"github.com/sells-group/decision-curator/internal/monitoring"
	"github.com/sells-group/decision-curator/internal/store"
)

// maxLimit caps list queries.
const maxLimit = 1000

// Backend is the store surface the API reads.
type Backend interface {
	store.CuratedStore
	store.RunLog
	Ping(ctx context.Context) error
}

type handler struct {
	backend Backend
	log     *zap.Logger
}

// NewRouter builds the HTTP API. metrics may be nil, which disables
// /metrics and request instrumentation.
func NewRouter(b Backend, metrics *monitoring.Metrics, corsOrigins []string) http.Handler {
	h := &handler{
		backend: b,
		log:     zap.L().With(zap.String("component", "api")),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(h.logRequests)
	if metrics != nil {
		r.Use(instrument(metrics))
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/records", h.listRecords)
		r.Get("/records/{identifier}", h.getRecords)
		r.Get("/runs", h.listRuns)
		r.Post("/resolve", h.resolve)
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Ping(r.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := store.CuratedFilter{
		Identifier: q.Get("identifier"),
		Partition:  q.Get("partition"),
		Authority:  q.Get("authority"),
		Limit:      limit,
	}
	if off := q.Get("offset"); off != "" {
		n, err := strconv.Atoi(off)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		f.Offset = n
	}

	recs, err := h.backend.ListCurated(r.Context(), f)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": nonNil(recs), "count": len(recs)})
}

func (h *handler) getRecords(w http.ResponseWriter, r *http.Request) {
	id := ident.Sanitize(chi.URLParam(r, "identifier"))
	recs, err := h.backend.ListCurated(r.Context(), store.CuratedFilter{Identifier: id, Limit: maxLimit})
	if err != nil {
		h.storeError(w, err)
		return
	}
	if len(recs) == 0 {
		writeError(w, http.StatusNotFound, "no curated records for "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"identifier": id, "records": recs})
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	f := store.RunFilter{Limit: limit, Status: model.RunStatus(r.URL.Query().Get("status"))}
	runs, err := h.backend.ListRuns(r.Context(), f)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": nonNil(runs), "count": len(runs)})
}

func (h *handler) resolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" && strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "url or title is required")
		return
	}
	writeJSON(w, http.StatusOK, ident.ResolveDetail(req.URL, req.Title))
}

func (h *handler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		h.log.Error("store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	h.log.Error("store query failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// instrument records request counts and latency by route pattern, which
// keeps identifiers out of the label set.
func instrument(m *monitoring.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTP(r.Method, route, strconv.Itoa(status), time.Since(start))
		})
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return min(n, maxLimit), true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
