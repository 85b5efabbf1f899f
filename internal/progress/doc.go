// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces the tracker uses to report job and batch milestones. Events are
// batched on a background goroutine and fanned out to pluggable sinks such as
// Prometheus metrics or the job-run store.
package progress
