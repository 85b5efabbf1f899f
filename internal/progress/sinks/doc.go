// Package sinks implements concrete progress consumers: Prometheus collectors,
// the job-run repository, and structured logging. Each sink satisfies
// progress.Sink and tolerates repeated Consume/Close cycles.
package sinks
