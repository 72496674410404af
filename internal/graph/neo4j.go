// Package graph records the crawled link graph in Neo4j.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// SessionRunner abstracts neo4j.SessionWithContext.
type SessionRunner interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Close(ctx context.Context) error
}

// DriverSessioner abstracts neo4j.DriverWithContext.
type DriverSessioner interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner
	Close(ctx context.Context) error
}

// Config holds the Neo4j connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

type neo4jDriver struct {
	driver neo4j.DriverWithContext
}

func (d *neo4jDriver) NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *neo4jDriver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Recorder writes each completed page and its outgoing links as
// (:Page)-[:LINKS_TO]->(:Page) edges. It satisfies crawler.Archiver.
type Recorder struct {
	driver   DriverSessioner
	database string
	logger   *zap.Logger
}

// Dial opens a driver and verifies connectivity.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Recorder, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return NewRecorder(&neo4jDriver{driver: driver}, cfg.Database, logger), nil
}

// NewRecorder wraps an existing driver.
func NewRecorder(driver DriverSessioner, database string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{driver: driver, database: database, logger: logger.Named("graph")}
}

// Archive merges the page node and its link edges.
func (r *Recorder) Archive(ctx context.Context, record crawler.ArchiveRecord) error {
	if record.PageURL == "" {
		return fmt.Errorf("graph record requires a page url")
	}
	query, params := buildPageQuery(record)
	return r.runWrite(ctx, query, params)
}

// Close releases the driver.
func (r *Recorder) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func (r *Recorder) runWrite(ctx context.Context, query string, params map[string]any) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			r.logger.Warn("neo4j session close failed", zap.Error(err))
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("write page graph: %w", err)
	}
	return nil
}

func buildPageQuery(record crawler.ArchiveRecord) (string, map[string]any) {
	query := "MERGE (p:Page {url: $url}) " +
		"SET p.domain = $domain, p.crawled_at = $crawled_at, p.text_blocks = $text_blocks " +
		"FOREACH (target IN $internal | " +
		"MERGE (t:Page {url: target}) ON CREATE SET t.domain = $domain " +
		"MERGE (p)-[:LINKS_TO {internal: true}]->(t)) " +
		"FOREACH (target IN $external | " +
		"MERGE (t:Page {url: target}) " +
		"MERGE (p)-[:LINKS_TO {internal: false}]->(t))"

	params := map[string]any{
		"url":         record.PageURL,
		"domain":      record.Domain,
		"crawled_at":  record.Timestamp.Unix(),
		"text_blocks": len(record.Result.Text),
		"internal":    stringsToAny(record.Result.Links.Internal),
		"external":    stringsToAny(record.Result.Links.External),
	}
	return query, params
}

func stringsToAny(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
