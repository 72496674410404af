// Package memory provides a queue implementation for local development and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// Queue is a bounded in-memory task queue with context-aware operations.
// Payloads are stored encoded so consumers see the same bytes a remote
// broker would deliver.
type Queue struct {
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan []byte, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue encodes the task and pushes it into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, task crawler.Task) error {
	payload, err := crawler.EncodeTask(task)
	if err != nil {
		return err
	}
	return q.push(ctx, payload)
}

// push hands an encoded payload to consumers.
func (q *Queue) push(ctx context.Context, payload []byte) error {
	select {
	case <-q.done:
		return crawler.ErrQueueClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return crawler.ErrQueueClosed
	case q.ch <- payload:
		return nil
	}
}

// Dequeue pops the next payload, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Delivery, error) {
	select {
	case <-ctx.Done():
		return crawler.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return crawler.Delivery{}, crawler.ErrQueueClosed
	case payload := <-q.ch:
		return crawler.Delivery{Payload: payload, Received: time.Now().UTC()}, nil
	}
}

// Len reports the number of buffered tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue. Buffered tasks are dropped.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
