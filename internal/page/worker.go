package page

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// Worker fetches a single page and extracts its links and text.
type Worker struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewWorker wires a Worker around a raw fetcher.
func NewWorker(fetcher crawler.Fetcher, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{fetcher: fetcher, logger: logger}
}

// FetchPage implements crawler.PageFetcher. It never retries; every failure
// is reported as *crawler.FetchError.
func (w *Worker) FetchPage(ctx context.Context, url string) (crawler.PageResult, error) {
	resp, err := w.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url})
	if err != nil {
		var fetchErr *crawler.FetchError
		if errors.As(err, &fetchErr) {
			return crawler.PageResult{}, fetchErr
		}
		return crawler.PageResult{}, &crawler.FetchError{URL: url, Reason: err.Error(), Err: err}
	}
	fetched := resp.URL
	if fetched == "" {
		fetched = url
	}
	result, err := Extract(url, fetched, resp.Body)
	if err != nil {
		return crawler.PageResult{}, &crawler.FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("extract: %v", err),
			Err:        err,
		}
	}
	w.logger.Debug("page extracted",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Int("internal_links", len(result.Links.Internal)),
		zap.Int("external_links", len(result.Links.External)),
		zap.Duration("duration", resp.Duration),
	)
	return result, nil
}
