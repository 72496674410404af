package kafkaqueue

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/sitemap-frontier/internal/crawler"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeReader struct {
	msgs      []kafka.Message
	committed []kafka.Message
	commitErr error
	closed    bool
}

func (r *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	if r.commitErr != nil {
		return r.commitErr
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestEnqueueWritesKeyedTask(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	q := NewWithClients(w, nil, nil)
	require.NoError(t, q.Enqueue(context.Background(), crawler.Task{PageURL: "https://Site.com/a"}))

	require.Len(t, w.msgs, 1)
	require.Equal(t, "site.com", string(w.msgs[0].Key))
	require.JSONEq(t, `{"page_url":"https://Site.com/a"}`, string(w.msgs[0].Value))
}

func TestEnqueueError(t *testing.T) {
	t.Parallel()

	q := NewWithClients(&fakeWriter{err: errors.New("write failed")}, nil, nil)
	err := q.Enqueue(context.Background(), crawler.Task{PageURL: "https://site.com"})
	require.ErrorContains(t, err, "write failed")
}

func TestDequeueCommitsOffset(t *testing.T) {
	t.Parallel()

	at := time.Unix(1700000000, 0).UTC()
	r := &fakeReader{msgs: []kafka.Message{{Value: []byte(`{"page_url":"https://site.com"}`), Offset: 7, Time: at}}}
	q := NewWithClients(&fakeWriter{}, r, nil)

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, `{"page_url":"https://site.com"}`, string(got.Payload))
	require.Equal(t, at, got.Received)
	require.Len(t, r.committed, 1)
	require.Equal(t, int64(7), r.committed[0].Offset)

	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, crawler.ErrQueueClosed)
}

func TestDequeueCommitFailureStillDelivers(t *testing.T) {
	t.Parallel()

	r := &fakeReader{
		msgs:      []kafka.Message{{Value: []byte(`{"page_url":"https://site.com"}`)}},
		commitErr: errors.New("rebalance"),
	}
	q := NewWithClients(&fakeWriter{}, r, nil)
	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, got.Payload)
	require.False(t, got.Received.IsZero())
}

func TestDequeueWithoutReader(t *testing.T) {
	t.Parallel()

	q := NewWithClients(&fakeWriter{}, nil, nil)
	_, err := q.Dequeue(context.Background())
	require.Error(t, err)
}

func TestCloseClosesClients(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	r := &fakeReader{}
	q := NewWithClients(w, r, nil)
	require.NoError(t, q.Close())
	require.True(t, w.closed)
	require.True(t, r.closed)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Topic: "t"}, nil)
	require.Error(t, err)
	_, err = New(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.Error(t, err)

	q, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "url-queue"}, nil)
	require.NoError(t, err)
	require.Nil(t, q.reader)
	require.NoError(t, q.Close())
}

func TestNewHashesKeysToPartitions(t *testing.T) {
	t.Parallel()

	q, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "url-queue"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	writer, ok := q.writer.(*kafka.Writer)
	require.True(t, ok)
	require.IsType(t, &kafka.Hash{}, writer.Balancer)

	w := &fakeWriter{}
	fq := NewWithClients(w, nil, nil)
	for _, u := range []string{"https://site.com/a", "https://site.com/b/c", "https://SITE.com:443/d"} {
		require.NoError(t, fq.Enqueue(context.Background(), crawler.Task{PageURL: u}))
	}
	partitions := []int{0, 1, 2, 3, 4, 5, 6, 7}
	want := writer.Balancer.Balance(w.msgs[0], partitions...)
	for _, msg := range w.msgs[1:] {
		require.Equal(t, want, writer.Balancer.Balance(msg, partitions...))
	}
}

func TestHeaderCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	var headers []kafka.Header
	propagation.TraceContext{}.Inject(ctx, &headerCarrier{headers: &headers})
	require.Len(t, headers, 1)

	r := &fakeReader{msgs: []kafka.Message{{Value: []byte(`{"page_url":"https://site.com"}`), Headers: headers}}}
	got, err := NewWithClients(&fakeWriter{}, r, nil).Dequeue(context.Background())
	require.NoError(t, err)
	restored := trace.SpanContextFromContext(
		propagation.TraceContext{}.Extract(context.Background(), propagation.MapCarrier(got.Attributes)))
	require.Equal(t, traceID, restored.TraceID())
	require.Equal(t, spanID, restored.SpanID())
}
