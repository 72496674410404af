package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

const defaultPageTable = "page_archive"

// PageArchive writes fetched page results into Postgres as JSONB rows.
type PageArchive struct {
	pool  pgxPool
	table string
}

// NewPageArchive constructs a PageArchive from an existing pool.
func NewPageArchive(pool pgxPool, table string) (*PageArchive, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table, defaultPageTable)
	if err != nil {
		return nil, err
	}
	return &PageArchive{pool: pool, table: name}, nil
}

// EnsureSchema creates the archive table when missing.
func (a *PageArchive) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id          BIGSERIAL PRIMARY KEY,
	page_url    TEXT NOT NULL,
	domain      TEXT NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL,
	links       JSONB NOT NULL,
	text        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_domain_idx ON %[1]s (domain, fetched_at DESC)`, a.table)
	if _, err := a.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create page archive schema: %w", err)
	}
	return nil
}

// Archive inserts one page result row.
func (a *PageArchive) Archive(ctx context.Context, record crawler.ArchiveRecord) error {
	if a == nil || a.pool == nil {
		return fmt.Errorf("page archive is not configured")
	}
	if record.PageURL == "" {
		return fmt.Errorf("page url is required")
	}
	linksJSON, err := json.Marshal(record.Result.Links)
	if err != nil {
		return fmt.Errorf("marshal links: %w", err)
	}
	text := record.Result.Text
	if text == nil {
		text = []string{}
	}
	textJSON, err := json.Marshal(text)
	if err != nil {
		return fmt.Errorf("marshal text: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (page_url, domain, fetched_at, links, text)
VALUES ($1, $2, $3, $4, $5)`, a.table)
	if _, err := a.pool.Exec(ctx, query,
		record.PageURL,
		record.Domain,
		record.Timestamp,
		linksJSON,
		textJSON,
	); err != nil {
		return fmt.Errorf("insert page archive row: %w", err)
	}
	return nil
}
