package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sitemap-frontier/internal/store"
)

const defaultStatsTable = "domain_stats"

// StatsStore implements store.StatsRepository using Postgres.
type StatsStore struct {
	pool  pgxPool
	table string
}

// NewStatsStore constructs a StatsStore from an existing pool.
func NewStatsStore(pool pgxPool, table string) (*StatsStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, defaultStatsTable)
	if err != nil {
		return nil, err
	}
	return &StatsStore{pool: pool, table: name}, nil
}

// EnsureSchema creates the stats table when missing.
func (s *StatsStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	domain          TEXT PRIMARY KEY,
	last_update     TIMESTAMPTZ NOT NULL,
	pages_completed BIGINT NOT NULL DEFAULT 0,
	pages_skipped   BIGINT NOT NULL DEFAULT 0,
	fetch_errors    BIGINT NOT NULL DEFAULT 0,
	task_errors     BIGINT NOT NULL DEFAULT 0,
	links_found     BIGINT NOT NULL DEFAULT 0,
	urls_queued     BIGINT NOT NULL DEFAULT 0
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create stats schema: %w", err)
	}
	return nil
}

// ApplyDomainStats adds delta to the domain's totals in one upsert.
func (s *StatsStore) ApplyDomainStats(ctx context.Context, domain string, delta store.StatsDelta, at time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %[1]s AS t (domain, last_update, pages_completed, pages_skipped, fetch_errors, task_errors, links_found, urls_queued)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (domain) DO UPDATE SET
	last_update     = GREATEST(t.last_update, EXCLUDED.last_update),
	pages_completed = t.pages_completed + EXCLUDED.pages_completed,
	pages_skipped   = t.pages_skipped + EXCLUDED.pages_skipped,
	fetch_errors    = t.fetch_errors + EXCLUDED.fetch_errors,
	task_errors     = t.task_errors + EXCLUDED.task_errors,
	links_found     = t.links_found + EXCLUDED.links_found,
	urls_queued     = t.urls_queued + EXCLUDED.urls_queued`, s.table)

	_, err := s.pool.Exec(ctx, query,
		domain,
		at,
		delta.PagesCompleted,
		delta.PagesSkipped,
		delta.FetchErrors,
		delta.TaskErrors,
		delta.LinksFound,
		delta.URLsQueued,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert domain stats: %w", err)
	}
	return nil
}

// GetDomainStats retrieves the totals for one domain.
func (s *StatsStore) GetDomainStats(ctx context.Context, domain string) (store.DomainStats, error) {
	query := fmt.Sprintf(`
SELECT domain, last_update, pages_completed, pages_skipped, fetch_errors, task_errors, links_found, urls_queued
FROM %s
WHERE domain = $1`, s.table)
	stats, err := scanStats(s.pool.QueryRow(ctx, query, domain))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.DomainStats{}, store.ErrNotFound
		}
		return store.DomainStats{}, fmt.Errorf("failed to get domain stats: %w", err)
	}
	return stats, nil
}

// ListDomainStats retrieves domain totals ordered by most recent update.
func (s *StatsStore) ListDomainStats(ctx context.Context, limit, offset int) ([]store.DomainStats, error) {
	query := fmt.Sprintf(`
SELECT domain, last_update, pages_completed, pages_skipped, fetch_errors, task_errors, links_found, urls_queued
FROM %s
ORDER BY last_update DESC
LIMIT $1 OFFSET $2`, s.table)
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list domain stats: %w", err)
	}
	defer rows.Close()

	out := make([]store.DomainStats, 0)
	for rows.Next() {
		stats, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan domain stats row: %w", err)
		}
		out = append(out, stats)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate domain stats: %w", err)
	}
	return out, nil
}

func scanStats(row pgx.Row) (store.DomainStats, error) {
	var stats store.DomainStats
	err := row.Scan(
		&stats.Domain,
		&stats.LastUpdate,
		&stats.PagesCompleted,
		&stats.PagesSkipped,
		&stats.FetchErrors,
		&stats.TaskErrors,
		&stats.LinksFound,
		&stats.URLsQueued,
	)
	return stats, err
}
