// Package queue defines the work queue abstraction shared by task producers
// and consumers. Backends live in subpackages (memory, pubsub, kafka); the
// queue carries work only, deduplication is the frontier store's job.
package queue

import (
	"context"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// Backend names used in configuration and metrics labels.
const (
	BackendMemory = "memory"
	BackendPubSub = "pubsub"
	BackendKafka  = "kafka"
)

// Queue is a task transport that can both publish and hand out work.
type Queue interface {
	crawler.TaskQueue
	crawler.TaskSource
	Close() error
}

// NoOpQueue accepts and drops every task. Dequeue blocks until ctx ends.
// It is useful for running the API without a worker pool.
type NoOpQueue struct{}

// Enqueue for NoOpQueue does nothing and returns nil.
func (NoOpQueue) Enqueue(context.Context, crawler.Task) error { return nil }

// Dequeue for NoOpQueue waits for cancellation.
func (NoOpQueue) Dequeue(ctx context.Context) (crawler.Delivery, error) {
	<-ctx.Done()
	return crawler.Delivery{}, ctx.Err()
}

// Close for NoOpQueue does nothing and returns nil.
func (NoOpQueue) Close() error { return nil }
