package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitemap-frontier/internal/metrics"
	"github.com/JakeFAU/sitemap-frontier/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns the
// collectors for task lifecycle counts and per-domain fetch counters.
type PrometheusSink struct {
	tasksReceived prometheus.Counter
	tasksFinished *prometheus.CounterVec
	tasksInFlight prometheus.Gauge
	taskDuration  *prometheus.HistogramVec

	fetchRequests *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	linksFound    *prometheus.CounterVec
	urlsQueued    *prometheus.CounterVec

	tracker *taskTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		tasksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "frontier_tasks_received_total",
			Help: "Total crawl tasks taken off the queue.",
		}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_tasks_finished_total",
			Help: "Total crawl tasks finished partitioned by outcome.",
		}, []string{"outcome"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frontier_tasks_in_flight",
			Help: "Crawl tasks received but not yet finished.",
		}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontier_task_duration_seconds",
			Help:    "Wall time per finished task.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 15, 30, 60},
		}, []string{"outcome"}),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_fetch_requests_total",
			Help: "Page fetches partitioned by domain and status class.",
		}, []string{"domain", "status_class"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontier_fetch_duration_seconds",
			Help:    "Page fetch duration partitioned by status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 15},
		}, []string{"status_class"}),
		linksFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_links_found_total",
			Help: "Internal links persisted per domain.",
		}, []string{"domain"}),
		urlsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontier_urls_queued_total",
			Help: "Newly discovered URLs handed to the work queue per domain.",
		}, []string{"domain"}),
		tracker: newTaskTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.tasksReceived,
		s.tasksFinished,
		s.tasksInFlight,
		s.taskDuration,
		s.fetchRequests,
		s.fetchDuration,
		s.linksFound,
		s.urlsQueued,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageTaskReceived:
		s.tasksReceived.Inc()
		if s.tracker.start(evt.TaskID) {
			s.tasksInFlight.Inc()
		}
	case progress.StageTaskSkipped:
		s.finish(evt, "skipped")
	case progress.StageTaskDone:
		domain := metrics.DomainLabel(evt.Domain)
		if evt.Links > 0 {
			s.linksFound.WithLabelValues(domain).Add(float64(evt.Links))
		}
		if evt.Queued > 0 {
			s.urlsQueued.WithLabelValues(domain).Add(float64(evt.Queued))
		}
		s.finish(evt, "completed")
	case progress.StageTaskError:
		s.finish(evt, "error")
	case progress.StageFetchDone, progress.StageFetchError:
		s.handleFetchEvent(evt)
	}
}

func (s *PrometheusSink) finish(evt progress.Event, outcome string) {
	s.tasksFinished.WithLabelValues(outcome).Inc()
	if evt.Dur > 0 {
		s.taskDuration.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.TaskID) {
		s.tasksInFlight.Dec()
	}
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.fetchRequests.WithLabelValues(metrics.DomainLabel(evt.Domain), statusClass).Inc()
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type taskTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newTaskTracker() *taskTracker {
	return &taskTracker{running: make(map[[16]byte]struct{})}
}

func (t *taskTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *taskTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
