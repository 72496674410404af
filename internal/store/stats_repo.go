package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("stats record not found")

// StatsDelta is an increment applied to a domain's running totals.
type StatsDelta struct {
	PagesCompleted int64 `json:"pages_completed"`
	PagesSkipped   int64 `json:"pages_skipped"`
	FetchErrors    int64 `json:"fetch_errors"`
	TaskErrors     int64 `json:"task_errors"`
	LinksFound     int64 `json:"links_found"`
	URLsQueued     int64 `json:"urls_queued"`
}

// IsZero reports whether the delta changes nothing.
func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}

// Add accumulates other into d.
func (d *StatsDelta) Add(other StatsDelta) {
	d.PagesCompleted += other.PagesCompleted
	d.PagesSkipped += other.PagesSkipped
	d.FetchErrors += other.FetchErrors
	d.TaskErrors += other.TaskErrors
	d.LinksFound += other.LinksFound
	d.URLsQueued += other.URLsQueued
}

// DomainStats is the aggregate crawl health of one domain.
type DomainStats struct {
	Domain     string    `json:"domain"`
	LastUpdate time.Time `json:"last_update"`
	StatsDelta
}

// StatsRepository persists per-domain crawl counters.
type StatsRepository interface {
	// ApplyDomainStats adds delta to the domain's totals, creating the row if needed.
	ApplyDomainStats(ctx context.Context, domain string, delta StatsDelta, at time.Time) error
	// GetDomainStats loads one domain or returns ErrNotFound.
	GetDomainStats(ctx context.Context, domain string) (DomainStats, error)
	// ListDomainStats returns domains ordered by most recent update.
	ListDomainStats(ctx context.Context, limit, offset int) ([]DomainStats, error)
}
