package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newMockFrontier(t *testing.T) (*FrontierStore, pgxmock.PgxPoolIface, time.Time) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewFrontierStore(mock, "website-sitemaps", fixedClock{t: now})
	require.NoError(t, err)
	return store, mock, now
}

func strPtr(s string) *string { return &s }

func TestNewFrontierStoreValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewFrontierStore(nil, "frontier", nil)
	assert.Error(t, err)
	_, err = NewFrontierStore(mock, "bad;table", nil)
	assert.Error(t, err)

	store, err := NewFrontierStore(mock, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "website_sitemaps", store.domains)
	assert.Equal(t, "website_sitemaps_urls", store.urls)
}

func TestFrontierStoreTryClaim(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		acquired bool
		existing *string
		want     crawler.ClaimResult
	}{
		{name: "fresh url", acquired: true, want: crawler.ClaimAcquired},
		{name: "claimed elsewhere", existing: strPtr("claimed"), want: crawler.ClaimAlreadyClaimed},
		{name: "completed", existing: strPtr("completed"), want: crawler.ClaimAlreadyCompleted},
		{name: "concurrent claim not yet visible", want: crawler.ClaimAlreadyClaimed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, mock, now := newMockFrontier(t)

			mock.ExpectQuery("INSERT INTO website_sitemaps_urls").
				WithArgs("site.com", "https://site.com/a", now, "claimed").
				WillReturnRows(pgxmock.NewRows([]string{"acquired", "status"}).AddRow(tt.acquired, tt.existing))

			got, err := store.TryClaim(context.Background(), "https://site.com/a", "site.com")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFrontierStoreTryClaimError(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockFrontier(t)
	mock.ExpectQuery("INSERT INTO website_sitemaps_urls").WillReturnError(errors.New("connection refused"))

	_, err := store.TryClaim(context.Background(), "https://site.com/a", "site.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFrontierStoreComplete(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockFrontier(t)
	mock.ExpectQuery("INSERT INTO website_sitemaps_urls").
		WithArgs("site.com", "https://site.com/a", "completed", []byte(`["https://site.com/b"]`), now).
		WillReturnRows(pgxmock.NewRows([]string{"domain_exists", "updated"}).AddRow(true, true))

	err := store.Complete(context.Background(), "https://site.com/a", "site.com", []string{"https://site.com/b"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFrontierStoreCompleteOutcomes(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockFrontier(t)
	mock.ExpectQuery("INSERT INTO website_sitemaps_urls").
		WithArgs("gone.com", "https://gone.com/a", "completed", []byte(`[]`), now).
		WillReturnRows(pgxmock.NewRows([]string{"domain_exists", "updated"}).AddRow(false, false))
	mock.ExpectQuery("INSERT INTO website_sitemaps_urls").
		WithArgs("site.com", "https://site.com/a", "completed", []byte(`[]`), now).
		WillReturnRows(pgxmock.NewRows([]string{"domain_exists", "updated"}).AddRow(true, false))

	err := store.Complete(context.Background(), "https://gone.com/a", "gone.com", nil)
	assert.True(t, errors.Is(err, crawler.ErrDomainNotFound))

	err = store.Complete(context.Background(), "https://site.com/a", "site.com", nil)
	assert.True(t, errors.Is(err, crawler.ErrAlreadyCompleted))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFrontierStoreIsKnown(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockFrontier(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("site.com", "https://site.com/b").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	known, err := store.IsKnown(context.Background(), "https://site.com/b", "site.com")
	require.NoError(t, err)
	assert.True(t, known)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFrontierStoreSnapshot(t *testing.T) {
	t.Parallel()

	store, mock, now := newMockFrontier(t)
	mock.ExpectQuery("SELECT last_updated FROM website_sitemaps").
		WithArgs("site.com").
		WillReturnRows(pgxmock.NewRows([]string{"last_updated"}).AddRow(now))
	mock.ExpectQuery("SELECT url, status, links FROM website_sitemaps_urls").
		WithArgs("site.com").
		WillReturnRows(pgxmock.NewRows([]string{"url", "status", "links"}).
			AddRow("https://site.com/a", "completed", []byte(`["https://site.com/b"]`)).
			AddRow("https://site.com/b", "claimed", []byte(`[]`)))

	record, err := store.Snapshot(context.Background(), "site.com")
	require.NoError(t, err)
	assert.Equal(t, now, record.LastUpdated)
	assert.Equal(t, crawler.URLState{Status: crawler.StatusCompleted, Links: []string{"https://site.com/b"}},
		record.URLStates["https://site.com/a"])
	assert.Equal(t, crawler.StatusClaimed, record.URLStates["https://site.com/b"].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFrontierStoreSnapshotMissingDomain(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockFrontier(t)
	mock.ExpectQuery("SELECT last_updated FROM website_sitemaps").
		WithArgs("none.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.Snapshot(context.Background(), "none.com")
	assert.True(t, errors.Is(err, crawler.ErrDomainNotFound))
}

func TestFrontierStoreEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock, _ := newMockFrontier(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS website_sitemaps").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
