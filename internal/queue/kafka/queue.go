// Package kafkaqueue implements the task queue on Kafka using segmentio/kafka-go.
package kafkaqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

// Config names the brokers, topic and consumer group backing the queue.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Queue publishes tasks with a kafka.Writer and consumes them with a
// consumer-group kafka.Reader. Offsets are committed when a worker takes the
// task, so a crash mid-task relies on the frontier claim rather than redelivery.
type Queue struct {
	writer messageWriter
	reader messageReader
	logger *zap.Logger
}

// New builds a Queue for the given brokers. A reader is only created when a
// consumer group is configured.
func New(cfg Config, logger *zap.Logger) (*Queue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
	}
	var reader messageReader
	if cfg.GroupID != "" {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			GroupID: cfg.GroupID,
		})
	}
	return NewWithClients(writer, reader, logger), nil
}

// NewWithClients builds a queue around custom writer and reader implementations (tests).
func NewWithClients(writer messageWriter, reader messageReader, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{writer: writer, reader: reader, logger: logger.Named("kafka_queue")}
}

// Enqueue writes one task keyed by its URL host. The writer hashes keys, so a
// domain's tasks share a partition. Trace context travels in the headers.
func (q *Queue) Enqueue(ctx context.Context, task crawler.Task) error {
	payload, err := crawler.EncodeTask(task)
	if err != nil {
		return err
	}
	key := task.PageURL
	if domain, err := crawler.DomainOf(task.PageURL); err == nil {
		key = domain
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
	}
	otel.GetTextMapPropagator().Inject(ctx, &headerCarrier{headers: &msg.Headers})
	if err := q.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write task: %w", err)
	}
	return nil
}

// Dequeue fetches the next message and commits its offset.
func (q *Queue) Dequeue(ctx context.Context) (crawler.Delivery, error) {
	if q.reader == nil {
		return crawler.Delivery{}, errors.New("kafka consumer group is not configured")
	}
	msg, err := q.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return crawler.Delivery{}, crawler.ErrQueueClosed
		}
		return crawler.Delivery{}, fmt.Errorf("fetch task: %w", err)
	}
	if err := q.reader.CommitMessages(ctx, msg); err != nil {
		q.logger.Warn("kafka commit failed",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
	}
	received := msg.Time
	if received.IsZero() {
		received = time.Now().UTC()
	}
	return crawler.Delivery{Payload: msg.Value, Received: received, Attributes: headerAttributes(msg.Headers)}, nil
}

// Close shuts down the writer and reader.
func (q *Queue) Close() error {
	var errs []error
	if q.writer != nil {
		if err := q.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer: %w", err))
		}
	}
	if q.reader != nil {
		if err := q.reader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close reader: %w", err))
		}
	}
	return errors.Join(errs...)
}

// headerCarrier implements propagation.TextMapCarrier over Kafka headers.
type headerCarrier struct {
	headers *[]kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func headerAttributes(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for _, h := range headers {
		attrs[h.Key] = string(h.Value)
	}
	return attrs
}
