// Package metrics exposes Prometheus collectors for the frontier service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	frontierClaimsTotal        *prometheus.CounterVec
	queueEnqueuedTotal         *prometheus.CounterVec
	archiveWritesTotal         *prometheus.CounterVec
	broadcastDeliveriesTotal   *prometheus.CounterVec
	websocketConnections       prometheus.Gauge
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	persistenceFailuresTotal   *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		frontierClaimsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_claims_total",
				Help: "Total claim attempts against the frontier store, labeled by result.",
			},
			[]string{"result"},
		)

		queueEnqueuedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_queue_enqueued_total",
				Help: "Total tasks handed to the work queue, labeled by backend and result.",
			},
			[]string{"backend", "result"},
		)

		archiveWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_archive_writes_total",
				Help: "Total archive writes, labeled by backend and result.",
			},
			[]string{"backend", "result"},
		)

		broadcastDeliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_broadcast_deliveries_total",
				Help: "Total realtime deliveries, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		websocketConnections = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "frontier_websocket_connections",
				Help: "Number of open websocket subscribers on this instance.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "frontier_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		persistenceFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_persistence_failures_total",
				Help: "Best-effort steps that failed and were skipped, labeled by step.",
			},
			[]string{"step"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// DomainLabel reduces a domain or URL to a lowercase host for use as a
// label value. Unparseable input maps to "unknown".
func DomainLabel(raw string) string {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveClaim counts a frontier claim attempt.
func ObserveClaim(result string) {
	Init()
	frontierClaimsTotal.WithLabelValues(result).Inc()
}

// ObserveEnqueue counts a work queue publish.
func ObserveEnqueue(backend string, ok bool) {
	Init()
	queueEnqueuedTotal.WithLabelValues(backend, resultLabel(ok)).Inc()
}

// ObserveArchive counts an archive write.
func ObserveArchive(backend string, ok bool) {
	Init()
	archiveWritesTotal.WithLabelValues(backend, resultLabel(ok)).Inc()
}

// ObserveDelivery counts a realtime delivery outcome.
func ObserveDelivery(outcome string) {
	Init()
	broadcastDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// ObservePersistenceFailure counts a best-effort coordinator step that failed.
func ObservePersistenceFailure(step string) {
	Init()
	persistenceFailuresTotal.WithLabelValues(step).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncWebsocketConnections increments the open websocket gauge.
func IncWebsocketConnections() {
	Init()
	websocketConnections.Inc()
}

// DecWebsocketConnections decrements the open websocket gauge.
func DecWebsocketConnections() {
	Init()
	websocketConnections.Dec()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
