package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// DefaultPrefix is the object key prefix used when none is configured.
const DefaultPrefix = "scraped"

// pageEntry is the per-URL body of an archive object.
type pageEntry struct {
	Links crawler.Links `json:"links"`
	Text  []string      `json:"text"`
}

// document is the archive object layout keyed by page URL under data.
type document struct {
	PageURL   string               `json:"page_url"`
	Timestamp int64                `json:"timestamp"`
	Data      map[string]pageEntry `json:"data"`
}

// Blob archives page results as JSON objects in a blob store.
type Blob struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	prefix string
	logger *zap.Logger
}

// NewBlob builds a blob archiver. An empty prefix falls back to DefaultPrefix.
func NewBlob(store crawler.BlobStore, hasher crawler.Hasher, prefix string, logger *zap.Logger) (*Blob, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Blob{
		store:  store,
		hasher: hasher,
		prefix: prefix,
		logger: logger.Named("archive"),
	}, nil
}

// Key returns the object key for a record:
// <prefix>/<domain>/scraped-data-<unix>-<hash>.json.
func (b *Blob) Key(record crawler.ArchiveRecord) (string, error) {
	digest, err := b.hasher.Hash([]byte(record.PageURL))
	if err != nil {
		return "", fmt.Errorf("hash page url: %w", err)
	}
	domain := record.Domain
	if domain == "" {
		domain, err = crawler.DomainOf(record.PageURL)
		if err != nil {
			return "", err
		}
	}
	name := fmt.Sprintf("scraped-data-%d-%s.json", record.Timestamp.Unix(), digest)
	return path.Join(b.prefix, domain, name), nil
}

// Archive writes the record and logs the resulting URI.
func (b *Blob) Archive(ctx context.Context, record crawler.ArchiveRecord) error {
	if record.PageURL == "" {
		return fmt.Errorf("archive record requires a page url")
	}
	key, err := b.Key(record)
	if err != nil {
		return err
	}
	body, err := Encode(record)
	if err != nil {
		return err
	}
	uri, err := b.store.PutObject(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("put archive object %s: %w", key, err)
	}
	b.logger.Debug("page archived", zap.String("url", record.PageURL), zap.String("uri", uri))
	return nil
}

// Encode renders the archive object body for a record.
func Encode(record crawler.ArchiveRecord) ([]byte, error) {
	text := record.Result.Text
	if text == nil {
		text = []string{}
	}
	links := record.Result.Links
	if links.Internal == nil {
		links.Internal = []string{}
	}
	if links.External == nil {
		links.External = []string{}
	}
	doc := document{
		PageURL:   record.PageURL,
		Timestamp: record.Timestamp.Unix(),
		Data: map[string]pageEntry{
			record.PageURL: {Links: links, Text: text},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal archive object: %w", err)
	}
	return data, nil
}
