// Package server exposes the analysis over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"xirr-benchmark/internal/cache"
	"xirr-benchmark/internal/service"
)

const (
	requestIDHeader     = "X-Request-ID"
	defaultMaxBodyBytes = 1 << 20
)

// Analyzer runs an investment analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req service.Request) (*service.Result, error)
}

// StatsProvider reports cache usage.
type StatsProvider interface {
	Stats() cache.Stats
}

// RouterOptions tune the HTTP handler.
type RouterOptions struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Version        string
}

type handler struct {
	opts     RouterOptions
	analyzer Analyzer
	stats    StatsProvider
}

// NewRouter wires middleware and routes. stats may be nil.
func NewRouter(opts RouterOptions, analyzer Analyzer, stats StatsProvider, logger zerolog.Logger) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	h := &handler{opts: opts, analyzer: analyzer, stats: stats}
	logger = logger.With().Str("component", "http").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(requestID)
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	r.Get("/healthz", h.health)
	r.Route("/api", func(r chi.Router) {
		r.Post("/investment-analysis", h.analyze)
		r.Get("/cache/stats", h.cacheStats)
	})

	return r
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", id)
		})
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	event := hlog.FromRequest(r).Info()
	if status >= http.StatusInternalServerError {
		event = hlog.FromRequest(r).Error()
	}
	event.
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote", r.RemoteAddr).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.opts.Version})
}

func (h *handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeData(w, http.StatusOK, cache.Stats{})
		return
	}
	writeData(w, http.StatusOK, h.stats.Stats())
}

func (h *handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	body := http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("bad request body")
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON with a transactions array.")
		return
	}

	ctx := r.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	res, err := h.analyzer.Analyze(ctx, req)
	if err != nil {
		svcErr := service.Internal(err)
		status := http.StatusBadRequest
		if !svcErr.Validation() {
			status = http.StatusInternalServerError
			hlog.FromRequest(r).Error().Err(err).Msg("analysis failed")
		}
		writeError(w, status, svcErr.Code, svcErr.Message)
		return
	}

	writeData(w, http.StatusOK, res)
}

type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, envelope{
		Success:   false,
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(requestIDHeader),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
