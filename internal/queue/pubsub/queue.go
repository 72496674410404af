// Package pubsubqueue implements the task queue on Google Cloud Pub/Sub: tasks
// are published to a topic and consumed from a pull subscription.
package pubsubqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

const defaultMaxOutstanding = 16

// Config names the Pub/Sub resources backing the queue.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
	// MaxOutstanding bounds unacknowledged messages held by this process.
	MaxOutstanding int
}

// Queue publishes and receives crawl tasks over Pub/Sub. Messages are acked
// once a worker has taken them; redelivery is tolerated by the frontier claim.
type Queue struct {
	client     *pubsub.Client
	ownsClient bool
	topic      *pubsub.Topic
	sub        *pubsub.Subscription
	logger     *zap.Logger

	deliveries chan crawler.Delivery
	startOnce  sync.Once
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
	recvErr    error
}

// Dial creates a Pub/Sub client from Application Default Credentials (or the
// supplied options) and returns a Queue that owns it.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger, opts ...option.ClientOption) (*Queue, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	q, err := New(ctx, client, cfg, logger)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("failed to close pubsub client after setup failure", zap.Error(closeErr))
		}
		return nil, err
	}
	q.ownsClient = true
	return q, nil
}

// New wraps an existing client. The topic must exist; the subscription is
// only required for consumers.
func New(ctx context.Context, client *pubsub.Client, cfg Config, logger *zap.Logger) (*Queue, error) {
	if client == nil {
		return nil, errors.New("pubsub client is required")
	}
	if cfg.TopicID == "" {
		return nil, errors.New("pubsub topic id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", cfg.TopicID)
	}

	q := &Queue{
		client:     client,
		topic:      topic,
		logger:     logger.Named("pubsub_queue"),
		deliveries: make(chan crawler.Delivery),
		done:       make(chan struct{}),
	}
	if cfg.SubscriptionID != "" {
		q.sub = client.Subscription(cfg.SubscriptionID)
		maxOutstanding := cfg.MaxOutstanding
		if maxOutstanding <= 0 {
			maxOutstanding = defaultMaxOutstanding
		}
		q.sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	}
	return q, nil
}

// Enqueue publishes the task and waits for the server acknowledgement.
func (q *Queue) Enqueue(ctx context.Context, task crawler.Task) error {
	payload, err := crawler.EncodeTask(task)
	if err != nil {
		return err
	}
	msg := &pubsub.Message{Data: payload, Attributes: make(map[string]string)}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	if _, err := q.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}
	return nil
}

// Dequeue blocks until a message arrives on the subscription.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Delivery, error) {
	if q.sub == nil {
		return crawler.Delivery{}, errors.New("pubsub subscription is not configured")
	}
	q.startOnce.Do(q.startReceiving)
	select {
	case <-ctx.Done():
		return crawler.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case d := <-q.deliveries:
		return d, nil
	case <-q.done:
		if q.recvErr != nil {
			return crawler.Delivery{}, fmt.Errorf("pubsub receive: %w", q.recvErr)
		}
		return crawler.Delivery{}, crawler.ErrQueueClosed
	}
}

func (q *Queue) startReceiving() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go func() {
		defer q.closeOnce.Do(func() { close(q.done) })
		err := q.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
			d := crawler.Delivery{Payload: msg.Data, Received: time.Now().UTC(), Attributes: msg.Attributes}
			select {
			case q.deliveries <- d:
				msg.Ack()
			case <-msgCtx.Done():
				msg.Nack()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			q.logger.Error("pubsub receive stopped", zap.Error(err))
			q.recvErr = err
		}
	}()
}

// Close stops receiving, flushes pending publishes and closes an owned client.
func (q *Queue) Close() error {
	// Blocks until a concurrent start finishes and keeps later Dequeues from starting one.
	q.startOnce.Do(func() {})
	if q.cancel != nil {
		q.cancel()
		<-q.done
	} else {
		q.closeOnce.Do(func() { close(q.done) })
	}
	q.topic.Stop()
	if !q.ownsClient {
		return nil
	}
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
