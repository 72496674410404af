package archive

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/metrics"
)

// Target is a named archiver; the name labels metrics and logs.
type Target struct {
	Name     string
	Archiver crawler.Archiver
}

// Multi writes each record to every target. A failing target does not stop
// the others.
type Multi struct {
	targets []Target
	logger  *zap.Logger
}

// NewMulti builds a fan-out archiver. Targets with a nil archiver are ignored.
func NewMulti(logger *zap.Logger, targets ...Target) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.Archiver != nil {
			kept = append(kept, t)
		}
	}
	return &Multi{targets: kept, logger: logger.Named("archive")}
}

// Len reports the number of targets.
func (m *Multi) Len() int {
	return len(m.targets)
}

// Archive writes the record to all targets and joins their errors.
func (m *Multi) Archive(ctx context.Context, record crawler.ArchiveRecord) error {
	var errs []error
	for _, t := range m.targets {
		err := t.Archiver.Archive(ctx, record)
		metrics.ObserveArchive(t.Name, err == nil)
		if err != nil {
			m.logger.Warn("archive target failed",
				zap.String("target", t.Name),
				zap.String("url", record.PageURL),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
