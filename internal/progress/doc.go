// Package progress carries per-task crawl milestones from coordinators to
// pluggable sinks. Emit never blocks; a background goroutine batches events
// and hands them to Prometheus, log, or repository sinks.
package progress
