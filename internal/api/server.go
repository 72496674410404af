package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
	"github.com/JakeFAU/sitemap-frontier/internal/config"
	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/metrics"
	"github.com/JakeFAU/sitemap-frontier/internal/store"
)

const (
	requestTimeout = 60 * time.Second
	enqueueTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// TaskHandler runs one raw task payload. coordinator.Coordinator satisfies it.
type TaskHandler interface {
	Handle(ctx context.Context, payload []byte) crawler.Outcome
}

// Broadcaster pushes events to realtime subscribers. broadcast.Gateway satisfies it.
type Broadcaster interface {
	Broadcast(ctx context.Context, evt broadcast.Event) (broadcast.Result, error)
}

// ReadyCheck reports whether a dependency can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Deps groups the collaborators exposed over HTTP. Nil members disable the
// routes that need them.
type Deps struct {
	Frontier    crawler.FrontierStore
	Queue       crawler.TaskQueue
	Tasks       TaskHandler
	Broadcaster Broadcaster
	Stats       store.StatsRepository
	// Realtime serves websocket upgrades on /ws.
	Realtime    http.Handler
	ReadyChecks map[string]ReadyCheck
}

// Server wires HTTP handlers to the frontier components.
type Server struct {
	router chi.Router
	deps   Deps
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		logger: logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())
	if deps.Realtime != nil {
		r.Handle("/ws", deps.Realtime)
	}

	stats := NewStatsHandler(deps.Stats, s.logger)
	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/crawl", s.seed)
		r.Post("/tasks", s.runTask)
		r.Post("/broadcast", s.broadcast)
		r.Get("/domains", stats.ListDomains)
		r.Route("/domains/{domain}", func(r chi.Router) {
			r.Get("/sitemap", s.sitemap)
			r.Get("/stats", stats.GetDomain)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failures := map[string]string{}
	for name, check := range s.deps.ReadyChecks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", zap.Any("failures", failures))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type seedRequest struct {
	URL          string `json:"url"`
	PageURL      string `json:"page_url"`
	PageURLCamel string `json:"pageUrl"`
}

func (s *Server) seed(w http.ResponseWriter, r *http.Request) {
	if s.deps.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "work queue unavailable")
		return
	}
	var req seedRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	raw := firstNonEmpty(req.URL, req.PageURL, req.PageURLCamel)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	pageURL, err := crawler.NormalizeURL(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	domain, err := crawler.DomainOf(pageURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	if err := s.deps.Queue.Enqueue(ctx, crawler.Task{PageURL: pageURL}); err != nil {
		s.logger.Error("seed enqueue failed", zap.String("url", pageURL), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, "failed to enqueue url")
		return
	}
	s.logger.Info("crawl seeded", zap.String("url", pageURL), zap.String("domain", domain))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"page_url":       pageURL,
		"website_domain": domain,
	})
}

type outcomeResponse struct {
	crawler.Outcome
	DurationMs int64 `json:"duration_ms"`
}

func (s *Server) runTask(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "task handler unavailable")
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	outcome := s.deps.Tasks.Handle(r.Context(), payload)
	status := http.StatusOK
	if outcome.Status == crawler.OutcomeError {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, outcomeResponse{Outcome: outcome, DurationMs: outcome.Duration.Milliseconds()})
}

func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broadcaster == nil {
		writeError(w, http.StatusServiceUnavailable, "broadcast gateway unavailable")
		return
	}
	var evt broadcast.Event
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := s.deps.Broadcaster.Broadcast(r.Context(), evt)
	if err != nil {
		if errors.Is(err, broadcast.ErrMissingDomain) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("broadcast failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "broadcast failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sitemapResponse struct {
	Domain      string                      `json:"website_domain"`
	LastUpdated time.Time                   `json:"last_updated"`
	Total       int                         `json:"total_urls"`
	Completed   int                         `json:"completed_urls"`
	URLs        map[string]crawler.URLState `json:"urls"`
}

func (s *Server) sitemap(w http.ResponseWriter, r *http.Request) {
	if s.deps.Frontier == nil {
		writeError(w, http.StatusServiceUnavailable, "frontier store unavailable")
		return
	}
	domain := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "domain")))
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	record, err := s.deps.Frontier.Snapshot(r.Context(), domain)
	if err != nil {
		if errors.Is(err, crawler.ErrDomainNotFound) {
			writeError(w, http.StatusNotFound, "domain not found")
			return
		}
		s.logger.Error("snapshot failed", zap.String("domain", domain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load sitemap")
		return
	}
	writeJSON(w, http.StatusOK, sitemapResponse{
		Domain:      record.Domain,
		LastUpdated: record.LastUpdated,
		Total:       len(record.URLStates),
		Completed:   record.Completed(),
		URLs:        record.URLStates,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.String("request_id", requestID(r.Context())),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("request_id", requestID(r.Context())))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		rw.status = http.StatusSwitchingProtocols
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}
