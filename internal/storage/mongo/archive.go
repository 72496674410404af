// Package mongostore archives page results as MongoDB documents.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// Defaults used when the configuration leaves names empty.
const (
	DefaultDatabase   = "frontier"
	DefaultCollection = "pages"
)

// Config captures the connection settings for the archive.
type Config struct {
	URI        string
	Database   string
	Collection string
}

// pageDocument is the stored shape of one archived page.
type pageDocument struct {
	PageURL   string    `bson:"page_url"`
	Domain    string    `bson:"domain"`
	FetchedAt time.Time `bson:"fetched_at"`
	Internal  []string  `bson:"internal_links"`
	External  []string  `bson:"external_links"`
	Text      []string  `bson:"text"`
}

// Archive writes page results into a collection.
type Archive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Dial connects to MongoDB, pings it, and opens the configured collection.
func Dial(ctx context.Context, cfg Config) (*Archive, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := cfg.Database
	if db == "" {
		db = DefaultDatabase
	}
	coll := cfg.Collection
	if coll == "" {
		coll = DefaultCollection
	}
	archive := New(client.Database(db).Collection(coll))
	archive.client = client
	return archive, nil
}

// New wraps an existing collection.
func New(collection *mongo.Collection) *Archive {
	return &Archive{collection: collection}
}

// Archive inserts one document per record.
func (a *Archive) Archive(ctx context.Context, record crawler.ArchiveRecord) error {
	if record.PageURL == "" {
		return fmt.Errorf("archive record requires a page url")
	}
	doc := pageDocument{
		PageURL:   record.PageURL,
		Domain:    record.Domain,
		FetchedAt: record.Timestamp.UTC(),
		Internal:  nonNil(record.Result.Links.Internal),
		External:  nonNil(record.Result.Links.External),
		Text:      nonNil(record.Result.Text),
	}
	if _, err := a.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert archive document: %w", err)
	}
	return nil
}

// CountForDomain returns how many archived documents exist for a domain.
func (a *Archive) CountForDomain(ctx context.Context, domain string) (int64, error) {
	n, err := a.collection.CountDocuments(ctx, bson.D{{Key: "domain", Value: domain}})
	if err != nil {
		return 0, fmt.Errorf("count archive documents: %w", err)
	}
	return n, nil
}

// Close disconnects the client when the archive created it.
func (a *Archive) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
