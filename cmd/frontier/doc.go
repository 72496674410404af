// Architecture overview:
//   - Work queue: tasks {"page_url": ...} travel over the configured queue (memory, Pub/Sub or
//     Kafka). The queue only carries work; duplicate deliveries are resolved by the frontier claim.
//   - Coordinator: each task is claimed against the frontier store (memory, Postgres or Redis)
//     with one atomic insert-if-absent. Only the claim winner fetches the page, records its
//     internal links, queues links the frontier has never seen, notifies realtime subscribers
//     and archives the raw result.
//   - Realtime: the broadcast gateway fans sitemap updates out to registered connections, either
//     websockets held by this process (/ws) or a callback endpoint that manages connections.
//   - Archive: page results go to a blob store (memory, local, GCS), Mongo or Postgres, and to a
//     Neo4j link graph when configured.
//   - Observability: zap logs, Prometheus metrics on /metrics, progress events batched to
//     log/metric/stats sinks, OpenTelemetry spans propagated through Pub/Sub attributes.
//
// Commands:
//   - frontier serve [--api-only]  HTTP API, websocket hub and worker pool.
//   - frontier work                worker pool only.
//   - frontier seed URL...         queue first pages.
//   - frontier task URL            run one task in the foreground and print its outcome.
//
// Configuration is read from --config (YAML/TOML/JSON), an optional .env file, and CRAWLER_*
// environment variables, e.g. CRAWLER_FRONTIER_BACKEND=redis CRAWLER_QUEUE_BACKEND=pubsub.
package main
