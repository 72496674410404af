// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /ws for realtime websocket subscribers.
//   - POST /v1/crawl to seed a URL and POST /v1/tasks to run one task inline.
//   - GET /v1/domains/{domain}/sitemap for the frontier view.
//   - GET /v1/domains and /v1/domains/{domain}/stats for crawl health via the
//     StatsRepository interface.
//   - POST /v1/broadcast to push an event to every subscriber.
package api
