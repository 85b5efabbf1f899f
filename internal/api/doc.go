// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - POST /v1/jobs accepts a keyword job as JSON or a multipart CSV upload.
//   - GET /v1/jobs/{job_id} and /v1/jobs/{job_id}/events report progress,
//     the latter as a Server-Sent Events stream.
//   - GET /v1/jobs/{job_id}/results filters the scored keywords of a finished job.
//   - GET /v1/batches/{batch_id}/artifact resolves a batch artifact address.
//   - GET /v1/runs lists persisted job runs when a ProgressRepository is wired.
//   - GET /healthz, /readyz and /metrics for probes and Prometheus scraping.
package api
