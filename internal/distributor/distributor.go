// Package distributor pushes newly discovered URLs onto the shared work queue.
// The queue is a work-distribution mechanism only: the frontier claim remains
// the deduplication boundary, so duplicate tasks are expected and tolerated.
package distributor

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/metrics"
)

// Distributor implements crawler.Distributor on top of a FrontierStore and a TaskQueue.
type Distributor struct {
	frontier crawler.FrontierStore
	queue    crawler.TaskQueue
	backend  string
	logger   *zap.Logger
}

// New constructs a Distributor. backend labels the enqueue metrics.
func New(frontier crawler.FrontierStore, queue crawler.TaskQueue, backend string, logger *zap.Logger) *Distributor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Distributor{
		frontier: frontier,
		queue:    queue,
		backend:  backend,
		logger:   logger.Named("distributor"),
	}
}

// FilterUnknown returns the subset of urls the frontier has never seen, in
// input order. A lookup error counts the URL as unknown.
func (d *Distributor) FilterUnknown(ctx context.Context, domain string, urls []string) []string {
	unknown := make([]string, 0, len(urls))
	for _, u := range urls {
		known, err := d.frontier.IsKnown(ctx, u, domain)
		if err != nil {
			d.logger.Warn("frontier lookup failed; treating url as unknown",
				zap.String("url", u),
				zap.String("domain", domain),
				zap.Error(err),
			)
			unknown = append(unknown, u)
			continue
		}
		if !known {
			unknown = append(unknown, u)
		}
	}
	return unknown
}

// Enqueue pushes one task per URL. Failures are logged and counted, never
// retried; the returned error joins every failure and the count reports how
// many tasks were accepted.
func (d *Distributor) Enqueue(ctx context.Context, urls []string) (int, error) {
	accepted := 0
	var errs []error
	for _, u := range urls {
		if err := d.queue.Enqueue(ctx, crawler.Task{PageURL: u}); err != nil {
			metrics.ObserveEnqueue(d.backend, false)
			d.logger.Warn("enqueue failed", zap.String("url", u), zap.Error(err))
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		metrics.ObserveEnqueue(d.backend, true)
		accepted++
	}
	return accepted, errors.Join(errs...)
}
