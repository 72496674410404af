package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/progress"
	"github.com/JakeFAU/sitemap-frontier/internal/store"
)

// StoreSink persists progress deltas via a store.StatsRepository. It batches
// domain-level counters to reduce write amplification.
type StoreSink struct {
	repo   store.StatsRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.StatsRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume collapses domain deltas and forwards them to the repository. It
// respects ctx deadlines and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[string]*domainDelta)
	order := make([]string, 0)

	for _, evt := range batch {
		if evt.Domain == "" {
			continue
		}
		var change store.StatsDelta
		switch evt.Stage {
		case progress.StageTaskDone:
			change = store.StatsDelta{PagesCompleted: 1, LinksFound: evt.Links, URLsQueued: evt.Queued}
		case progress.StageTaskSkipped:
			change = store.StatsDelta{PagesSkipped: 1}
		case progress.StageFetchError:
			change = store.StatsDelta{FetchErrors: 1}
		case progress.StageTaskError:
			change = store.StatsDelta{TaskErrors: 1}
		default:
			continue
		}
		d := deltas[evt.Domain]
		if d == nil {
			d = &domainDelta{}
			deltas[evt.Domain] = d
			order = append(order, evt.Domain)
		}
		d.delta.Add(change)
		if evt.TS.After(d.at) {
			d.at = evt.TS
		}
	}

	for _, domain := range order {
		d := deltas[domain]
		if d.delta.IsZero() {
			continue
		}
		if err := s.repo.ApplyDomainStats(ctx, domain, d.delta, d.at); err != nil {
			s.logger.Warn("domain stats write failed", zap.String("domain", domain), zap.Error(err))
			return fmt.Errorf("apply domain stats: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type domainDelta struct {
	delta store.StatsDelta
	at    time.Time
}
