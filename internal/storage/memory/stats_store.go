package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/sitemap-frontier/internal/store"
)

// StatsStore implements store.StatsRepository in process memory.
type StatsStore struct {
	mu    sync.RWMutex
	stats map[string]store.DomainStats
}

// NewStatsStore constructs an empty StatsStore.
func NewStatsStore() *StatsStore {
	return &StatsStore{stats: make(map[string]store.DomainStats)}
}

// ApplyDomainStats adds delta to the domain's totals.
func (s *StatsStore) ApplyDomainStats(_ context.Context, domain string, delta store.StatsDelta, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.stats[domain]
	if !ok {
		cur = store.DomainStats{Domain: domain}
	}
	cur.Add(delta)
	if at.After(cur.LastUpdate) {
		cur.LastUpdate = at
	}
	s.stats[domain] = cur
	return nil
}

// GetDomainStats returns the totals for domain or store.ErrNotFound.
func (s *StatsStore) GetDomainStats(_ context.Context, domain string) (store.DomainStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.stats[domain]
	if !ok {
		return store.DomainStats{}, store.ErrNotFound
	}
	return cur, nil
}

// ListDomainStats returns domains ordered by most recent update.
func (s *StatsStore) ListDomainStats(_ context.Context, limit, offset int) ([]store.DomainStats, error) {
	s.mu.RLock()
	all := make([]store.DomainStats, 0, len(s.stats))
	for _, st := range s.stats {
		all = append(all, st)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool {
		if all[i].LastUpdate.Equal(all[j].LastUpdate) {
			return all[i].Domain < all[j].Domain
		}
		return all[i].LastUpdate.After(all[j].LastUpdate)
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []store.DomainStats{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
