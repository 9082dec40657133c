// Package progress carries crawl milestones from workers to observers. Workers
// emit events into a non-blocking Hub that batches them on a background
// goroutine and fans each batch out to sinks such as the structured log or the
// Prometheus registry.
package progress
