package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/store"
)

const (
	defaultDomainLimit = 100
	maxDomainLimit     = 1000
	statsTimeout       = 3 * time.Second
)

// StatsHandler exposes read-only per-domain crawl health endpoints.
type StatsHandler struct {
	repo    store.StatsRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewStatsHandler wires the repository and logger.
func NewStatsHandler(repo store.StatsRepository, logger *zap.Logger) *StatsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsHandler{
		repo:    repo,
		timeout: statsTimeout,
		logger:  logger,
	}
}

// ListDomains handles GET /v1/domains?limit=&offset=. It returns
// {"domains": [...]} ordered by most recent activity, 400 for invalid paging,
// 503 when the repo is unavailable, or 500 if the repository call fails.
func (h *StatsHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "stats repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultDomainLimit, maxDomainLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.repo.ListDomainStats(ctx, limit, offset)
	if err != nil {
		h.logger.Error("list domain stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list domains")
		return
	}
	if stats == nil {
		stats = []store.DomainStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": stats})
}

// GetDomain handles GET /v1/domains/{domain}/stats. It returns
// {"stats": {...}} on success, 404 when the repository reports
// store.ErrNotFound, 503 if the repo is not initialized, or 500 otherwise.
func (h *StatsHandler) GetDomain(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "stats repository unavailable")
		return
	}
	domain := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "domain")))
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.repo.GetDomainStats(ctx, domain)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "domain not found")
			return
		}
		h.logger.Error("get domain stats failed", zap.String("domain", domain), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load domain stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
