// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultFrontierTable = "website_sitemaps"

// PoolConfig controls the Postgres connection pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// NewPool opens a pgx pool from cfg.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// tableName maps a logical table name such as "website-sitemaps" onto a
// valid unquoted identifier.
func tableName(raw, fallback string) (string, error) {
	table := strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")
	if table == "" {
		table = fallback
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", raw)
	}
	return table, nil
}

// FrontierStore keeps domain frontiers in two tables: one row per domain
// (<table>) and one row per tracked URL (<table>_urls). Claims are a single
// INSERT ... ON CONFLICT DO NOTHING statement.
type FrontierStore struct {
	pool    pgxPool
	domains string
	urls    string
	now     func() time.Time
}

// NewFrontierStore constructs a store from an existing pool.
func NewFrontierStore(pool pgxPool, table string, clock crawler.Clock) (*FrontierStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, defaultFrontierTable)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &FrontierStore{pool: pool, domains: name, urls: name + "_urls", now: now}, nil
}

// Close releases the underlying pool resources.
func (s *FrontierStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the frontier tables when missing.
func (s *FrontierStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	domain       TEXT PRIMARY KEY,
	last_updated TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS %[2]s (
	domain     TEXT NOT NULL,
	url        TEXT NOT NULL,
	status     TEXT NOT NULL,
	links      JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (domain, url)
)`, s.domains, s.urls)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create frontier schema: %w", err)
	}
	return nil
}

// TryClaim inserts url as claimed unless the domain already tracks it. The
// domain row is created lazily in the same statement.
func (s *FrontierStore) TryClaim(ctx context.Context, url, domain string) (crawler.ClaimResult, error) {
	query := fmt.Sprintf(`
WITH dom AS (
	INSERT INTO %[1]s (domain, last_updated) VALUES ($1::text, $3::timestamptz)
	ON CONFLICT (domain) DO NOTHING
), claimed AS (
	INSERT INTO %[2]s (domain, url, status, updated_at) VALUES ($1::text, $2::text, $4::text, $3::timestamptz)
	ON CONFLICT (domain, url) DO NOTHING
	RETURNING url
), touched AS (
	UPDATE %[1]s SET last_updated = GREATEST(%[1]s.last_updated + interval '1 microsecond', $3)
	WHERE domain = $1 AND EXISTS (SELECT 1 FROM claimed)
)
SELECT EXISTS (SELECT 1 FROM claimed), (SELECT status FROM %[2]s WHERE domain = $1 AND url = $2)`,
		s.domains, s.urls)

	var (
		acquired bool
		existing *string
	)
	err := s.pool.QueryRow(ctx, query, domain, url, s.now().UTC(), string(crawler.StatusClaimed)).
		Scan(&acquired, &existing)
	if err != nil {
		return "", fmt.Errorf("claim %s: %w", url, err)
	}
	switch {
	case acquired:
		return crawler.ClaimAcquired, nil
	case existing != nil && *existing == string(crawler.StatusCompleted):
		return crawler.ClaimAlreadyCompleted, nil
	default:
		// A conflicting row committed after this statement's snapshot is not
		// visible to the status lookup; it can only be a fresh claim.
		return crawler.ClaimAlreadyClaimed, nil
	}
}

// Complete marks url completed with its discovered links.
func (s *FrontierStore) Complete(ctx context.Context, url, domain string, links []string) error {
	if links == nil {
		links = []string{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	query := fmt.Sprintf(`
WITH updated AS (
	INSERT INTO %[2]s (domain, url, status, links, updated_at)
	SELECT $1::text, $2::text, $3::text, $4::jsonb, $5::timestamptz WHERE EXISTS (SELECT 1 FROM %[1]s WHERE domain = $1)
	ON CONFLICT (domain, url) DO UPDATE
	SET status = EXCLUDED.status, links = EXCLUDED.links, updated_at = EXCLUDED.updated_at
	WHERE %[2]s.status <> EXCLUDED.status
	RETURNING url
), touched AS (
	UPDATE %[1]s SET last_updated = GREATEST(%[1]s.last_updated + interval '1 microsecond', $5)
	WHERE domain = $1 AND EXISTS (SELECT 1 FROM updated)
)
SELECT EXISTS (SELECT 1 FROM %[1]s WHERE domain = $1), EXISTS (SELECT 1 FROM updated)`,
		s.domains, s.urls)

	var domainExists, updated bool
	err = s.pool.QueryRow(ctx, query, domain, url, string(crawler.StatusCompleted), linksJSON, s.now().UTC()).
		Scan(&domainExists, &updated)
	if err != nil {
		return fmt.Errorf("complete %s: %w", url, err)
	}
	if !domainExists {
		return fmt.Errorf("complete %s: %w", url, crawler.ErrDomainNotFound)
	}
	if !updated {
		return fmt.Errorf("complete %s: %w", url, crawler.ErrAlreadyCompleted)
	}
	return nil
}

// IsKnown reports whether url has been claimed or completed.
func (s *FrontierStore) IsKnown(ctx context.Context, url, domain string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE domain = $1 AND url = $2)`, s.urls)
	var known bool
	if err := s.pool.QueryRow(ctx, query, domain, url).Scan(&known); err != nil {
		return false, fmt.Errorf("lookup %s: %w", url, err)
	}
	return known, nil
}

// Snapshot loads the full frontier of one domain.
func (s *FrontierStore) Snapshot(ctx context.Context, domain string) (crawler.DomainRecord, error) {
	record := crawler.DomainRecord{Domain: domain, URLStates: make(map[string]crawler.URLState)}
	query := fmt.Sprintf(`SELECT last_updated FROM %s WHERE domain = $1`, s.domains)
	if err := s.pool.QueryRow(ctx, query, domain).Scan(&record.LastUpdated); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.DomainRecord{}, fmt.Errorf("snapshot %s: %w", domain, crawler.ErrDomainNotFound)
		}
		return crawler.DomainRecord{}, fmt.Errorf("snapshot %s: %w", domain, err)
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT url, status, links FROM %s WHERE domain = $1`, s.urls), domain)
	if err != nil {
		return crawler.DomainRecord{}, fmt.Errorf("snapshot %s urls: %w", domain, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			url, status string
			linksJSON   []byte
		)
		if err := rows.Scan(&url, &status, &linksJSON); err != nil {
			return crawler.DomainRecord{}, fmt.Errorf("scan url row: %w", err)
		}
		state := crawler.URLState{Status: crawler.URLStatus(status)}
		if len(linksJSON) > 0 {
			if err := json.Unmarshal(linksJSON, &state.Links); err != nil {
				return crawler.DomainRecord{}, fmt.Errorf("decode links for %s: %w", url, err)
			}
		}
		record.URLStates[url] = state
	}
	if err := rows.Err(); err != nil {
		return crawler.DomainRecord{}, fmt.Errorf("iterate url rows: %w", err)
	}
	return record, nil
}
