// Package crawler defines the core types and ports shared by the frontier,
// the page worker, the work distributor, and the crawl coordinator.
package crawler
