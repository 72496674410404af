package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/storage/memory"
	"github.com/JakeFAU/sitemap-frontier/internal/store"
)

func TestStatsHandlerListDomains(t *testing.T) {
	t.Parallel()

	repo := memory.NewStatsStore()
	ctx := context.Background()
	require.NoError(t, repo.ApplyDomainStats(ctx, "a.com", store.StatsDelta{PagesCompleted: 2, LinksFound: 7}, time.Unix(100, 0)))
	require.NoError(t, repo.ApplyDomainStats(ctx, "b.com", store.StatsDelta{PagesSkipped: 1}, time.Unix(200, 0)))
	handler := NewStatsHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/domains?limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListDomains(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Domains []store.DomainStats `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Domains, 2)
	assert.Equal(t, "b.com", body.Domains[0].Domain)
	assert.Equal(t, "a.com", body.Domains[1].Domain)
	assert.EqualValues(t, 7, body.Domains[1].LinksFound)
}

func TestStatsHandlerListDomainsInvalidLimit(t *testing.T) {
	t.Parallel()

	handler := NewStatsHandler(memory.NewStatsStore(), zap.NewNop())
	rec := httptest.NewRecorder()
	handler.ListDomains(rec, httptest.NewRequest(http.MethodGet, "/v1/domains?limit=-1", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler.ListDomains(rec, httptest.NewRequest(http.MethodGet, "/v1/domains?offset=x", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsHandlerGetDomain(t *testing.T) {
	t.Parallel()

	repo := memory.NewStatsStore()
	require.NoError(t, repo.ApplyDomainStats(context.Background(), "site.com",
		store.StatsDelta{PagesCompleted: 1, URLsQueued: 3}, time.Unix(100, 0)))
	handler := NewStatsHandler(repo, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.GetDomain(rec, withDomainParam(httptest.NewRequest(http.MethodGet, "/v1/domains/site.com/stats", nil), "Site.com"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Stats store.DomainStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "site.com", body.Stats.Domain)
	assert.EqualValues(t, 3, body.Stats.URLsQueued)
}

func TestStatsHandlerGetDomainNotFound(t *testing.T) {
	t.Parallel()

	handler := NewStatsHandler(memory.NewStatsStore(), zap.NewNop())
	rec := httptest.NewRecorder()
	handler.GetDomain(rec, withDomainParam(httptest.NewRequest(http.MethodGet, "/", nil), "missing.com"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsHandlerRepoErrors(t *testing.T) {
	t.Parallel()

	handler := NewStatsHandler(&failingStatsRepo{err: errors.New("db down")}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.ListDomains(rec, httptest.NewRequest(http.MethodGet, "/v1/domains", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	handler.GetDomain(rec, withDomainParam(httptest.NewRequest(http.MethodGet, "/", nil), "a.com"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStatsHandlerUnavailable(t *testing.T) {
	t.Parallel()

	handler := NewStatsHandler(nil, nil)
	rec := httptest.NewRecorder()
	handler.ListDomains(rec, httptest.NewRequest(http.MethodGet, "/v1/domains", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type failingStatsRepo struct {
	err error
}

func (f *failingStatsRepo) ApplyDomainStats(context.Context, string, store.StatsDelta, time.Time) error {
	return f.err
}

func (f *failingStatsRepo) GetDomainStats(context.Context, string) (store.DomainStats, error) {
	return store.DomainStats{}, f.err
}

func (f *failingStatsRepo) ListDomainStats(context.Context, int, int) ([]store.DomainStats, error) {
	return nil, f.err
}

func withDomainParam(r *http.Request, domain string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("domain", domain)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
