package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-frontier/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	taskID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{TaskID: taskID, TS: now, Stage: progress.StageTaskReceived},
		{
			TaskID:      taskID,
			TS:          now.Add(time.Second),
			Stage:       progress.StageFetchDone,
			Domain:      "site.com",
			StatusClass: progress.Status2xx,
			Dur:         200 * time.Millisecond,
		},
		{
			TaskID: taskID,
			TS:     now.Add(2 * time.Second),
			Stage:  progress.StageTaskDone,
			Domain: "site.com",
			Links:  4,
			Queued: 3,
			Dur:    2 * time.Second,
		},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksReceived))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksFinished.WithLabelValues("completed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.tasksInFlight))
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetchRequests.WithLabelValues("site.com", "2xx")), 1e-9)
	require.InDelta(t, 4.0, testutil.ToFloat64(sink.linksFound.WithLabelValues("site.com")), 1e-9)
	require.InDelta(t, 3.0, testutil.ToFloat64(sink.urlsQueued.WithLabelValues("site.com")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "frontier_fetch_duration_seconds"))
}

func TestPrometheusSinkTracksSkipsAndErrors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	skipped := progress.UUIDToBytes(uuid.New())
	failed := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TaskID: skipped, TS: now, Stage: progress.StageTaskReceived},
		{TaskID: failed, TS: now, Stage: progress.StageTaskReceived},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.tasksInFlight))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{TaskID: skipped, TS: now, Stage: progress.StageTaskSkipped, Domain: "site.com"},
		{TaskID: failed, TS: now, Stage: progress.StageFetchError, Domain: "site.com", StatusClass: progress.Status5xx},
		{TaskID: failed, TS: now, Stage: progress.StageTaskError, Note: "boom"},
		{TaskID: failed, TS: now, Stage: progress.StageTaskError, Note: "duplicate"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.tasksInFlight))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksFinished.WithLabelValues("skipped")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.tasksFinished.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.fetchRequests.WithLabelValues("site.com", "5xx")))
}

func TestNewPrometheusSinkRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
