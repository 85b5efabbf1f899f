// Package main hosts the KGR API server entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server accepts keyword jobs (JSON or multipart CSV), partitions them into batches
//     of config.Batch.Size, and hands every batch to the dispatcher in one concurrent fan-out.
//   - Dispatch: batches leave through the configured backend. "queue" feeds an in-process worker pool,
//     "github" triggers a workflow_dispatch per batch, and "pubsub" publishes one message per batch.
//   - Tracking: internal/tracker polls the shared result store with an interval that doubles while nothing
//     changes, merges each artifact once, and scores the job when every batch is terminal. Status snapshots
//     fan out through the events broker to SSE subscribers.
//   - Persistence & fanout: artifacts live in memory, local disk, GCS, Redis or a GitHub repository.
//     Progress events are buffered by a Hub and sent to log, Prometheus and Postgres sinks.
//   - Configuration & plumbing: Viper populates config from env (KGR_*) and files; .env is loaded first;
//     zap provides structured logging; Prometheus metrics are served on /metrics.
//
// Quick checklist:
//   - Configure env vars: KGR_SERVER_PORT or PORT, KGR_DISPATCH_BACKEND, KGR_STORAGE_BACKEND and the matching
//     sub-sections, KGR_DATABASE_DSN when job runs should be persisted.
//   - Run locally: go run ./cmd/kgrserver -config config.yaml (or rely solely on env overrides).
//   - The process reacts to SIGINT/SIGTERM by draining HTTP, stopping workers and flushing progress sinks.
package main
