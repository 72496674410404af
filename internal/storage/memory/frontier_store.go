package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// FrontierStore keeps domain frontiers in process memory. Every mutation is a
// single read-modify-write under one lock, which makes TryClaim an atomic
// insert-if-absent.
type FrontierStore struct {
	mu      sync.RWMutex
	domains map[string]*crawler.DomainRecord
	now     func() time.Time
}

// NewFrontierStore constructs a FrontierStore. A nil clock uses wall time.
func NewFrontierStore(clock crawler.Clock) *FrontierStore {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &FrontierStore{
		domains: make(map[string]*crawler.DomainRecord),
		now:     now,
	}
}

// TryClaim inserts url as claimed unless the domain already tracks it.
func (s *FrontierStore) TryClaim(_ context.Context, url, domain string) (crawler.ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.domains[domain]
	if !ok {
		record = &crawler.DomainRecord{Domain: domain, URLStates: make(map[string]crawler.URLState)}
		s.domains[domain] = record
	}
	if state, exists := record.URLStates[url]; exists {
		if state.Status == crawler.StatusCompleted {
			return crawler.ClaimAlreadyCompleted, nil
		}
		return crawler.ClaimAlreadyClaimed, nil
	}
	record.URLStates[url] = crawler.URLState{Status: crawler.StatusClaimed}
	s.touch(record)
	return crawler.ClaimAcquired, nil
}

// Complete records the links discovered on url and marks it completed.
func (s *FrontierStore) Complete(_ context.Context, url, domain string, links []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.domains[domain]
	if !ok {
		return fmt.Errorf("complete %s: %w", url, crawler.ErrDomainNotFound)
	}
	if state, exists := record.URLStates[url]; exists && state.Status == crawler.StatusCompleted {
		return fmt.Errorf("complete %s: %w", url, crawler.ErrAlreadyCompleted)
	}
	record.URLStates[url] = crawler.URLState{
		Status: crawler.StatusCompleted,
		Links:  append(make([]string, 0, len(links)), links...),
	}
	s.touch(record)
	return nil
}

// IsKnown reports whether url has been claimed or completed.
func (s *FrontierStore) IsKnown(_ context.Context, url, domain string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.domains[domain]
	if !ok {
		return false, nil
	}
	_, exists := record.URLStates[url]
	return exists, nil
}

// Snapshot returns a deep copy of the domain frontier.
func (s *FrontierStore) Snapshot(_ context.Context, domain string) (crawler.DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.domains[domain]
	if !ok {
		return crawler.DomainRecord{}, fmt.Errorf("snapshot %s: %w", domain, crawler.ErrDomainNotFound)
	}
	out := crawler.DomainRecord{
		Domain:      record.Domain,
		URLStates:   make(map[string]crawler.URLState, len(record.URLStates)),
		LastUpdated: record.LastUpdated,
	}
	for url, state := range record.URLStates {
		state.Links = append([]string(nil), state.Links...)
		out.URLStates[url] = state
	}
	return out, nil
}

// touch advances LastUpdated, strictly increasing even if the clock stalls.
func (s *FrontierStore) touch(record *crawler.DomainRecord) {
	now := s.now().UTC()
	if !now.After(record.LastUpdated) {
		now = record.LastUpdated.Add(time.Nanosecond)
	}
	record.LastUpdated = now
}
