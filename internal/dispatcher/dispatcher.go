// Package dispatcher hosts many task invocations in one process by running a
// pool of workers over a TaskSource.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
	"github.com/JakeFAU/sitemap-frontier/internal/metrics"
)

// Handler runs one task payload to completion.
type Handler interface {
	Handle(ctx context.Context, payload []byte) crawler.Outcome
}

// DefaultRetryDelay is the pause after a failed dequeue.
const DefaultRetryDelay = 250 * time.Millisecond

// Dispatcher fans queue deliveries out to a fixed number of workers.
type Dispatcher struct {
	source     crawler.TaskSource
	handler    Handler
	workers    int
	retryDelay time.Duration
	propagator propagation.TextMapPropagator
	logger     *zap.Logger
}

// New creates a Dispatcher. workers below 1 are raised to 1.
func New(source crawler.TaskSource, handler Handler, workers int, logger *zap.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		source:     source,
		handler:    handler,
		workers:    workers,
		retryDelay: DefaultRetryDelay,
		logger:     logger.Named("dispatcher"),
	}
}

// WithPropagator overrides the global propagator used to restore trace
// context from delivery attributes.
func (d *Dispatcher) WithPropagator(p propagation.TextMapPropagator) *Dispatcher {
	d.propagator = p
	return d
}

// taskContext continues the trace the producer injected into the delivery.
func (d *Dispatcher) taskContext(ctx context.Context, delivery crawler.Delivery) context.Context {
	if len(delivery.Attributes) == 0 {
		return ctx
	}
	p := d.propagator
	if p == nil {
		p = otel.GetTextMapPropagator()
	}
	return p.Extract(ctx, propagation.MapCarrier(delivery.Attributes))
}

// Run starts all workers and blocks until the context finishes or the source
// is closed.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, d.logger.With(zap.Int("worker", worker)))
		}(i)
	}
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, logger *zap.Logger) {
	for {
		delivery, err := d.source.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			logger.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.retryDelay):
			}
			continue
		}

		metrics.IncActiveWorkers()
		outcome := d.handler.Handle(d.taskContext(ctx, delivery), delivery.Payload)
		metrics.DecActiveWorkers()

		logger.Debug("task finished",
			zap.String("status", string(outcome.Status)),
			zap.String("url", outcome.URL),
			zap.String("reason", outcome.Reason))
	}
}
