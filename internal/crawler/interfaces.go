package crawler

import (
	"context"
	"io"
	"time"
)

// FrontierStore is the shared, durable per-domain frontier.
// TryClaim must be a single atomic insert-if-absent against the domain record.
type FrontierStore interface {
	TryClaim(ctx context.Context, url, domain string) (ClaimResult, error)
	Complete(ctx context.Context, url, domain string, links []string) error
	IsKnown(ctx context.Context, url, domain string) (bool, error)
	Snapshot(ctx context.Context, domain string) (DomainRecord, error)
}

// TaskQueue accepts crawl tasks for other workers to pick up.
type TaskQueue interface {
	Enqueue(ctx context.Context, task Task) error
}

// TaskSource hands out raw task payloads, one at a time.
type TaskSource interface {
	Dequeue(ctx context.Context) (Delivery, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PageFetcher fetches one page and returns its classified links and text.
// Failures are reported as *FetchError.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (PageResult, error)
}

// Distributor pushes newly discovered URLs onto the work queue.
type Distributor interface {
	FilterUnknown(ctx context.Context, domain string, urls []string) []string
	Enqueue(ctx context.Context, urls []string) (int, error)
}

// Notifier tells realtime observers that a domain frontier grew.
type Notifier interface {
	NotifySitemapUpdate(ctx context.Context, domain string, linkCount int) error
}

// Archiver writes raw page results to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, record ArchiveRecord) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Hasher computes digests used in object keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces connection and request IDs.
type IDGenerator interface {
	NewID() (string, error)
}
