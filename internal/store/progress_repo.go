package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// JobRunStatus mirrors the job_runs status column.
type JobRunStatus string

// Job run statuses persisted in job_runs.status.
const (
	RunRunning        JobRunStatus = "running"
	RunComplete       JobRunStatus = "complete"
	RunPartialFailure JobRunStatus = "partial_failure"
)

// Valid reports whether s is a known run status.
func (s JobRunStatus) Valid() bool {
	switch s {
	case RunRunning, RunComplete, RunPartialFailure:
		return true
	default:
		return false
	}
}

// JobRun models the job_runs table for API responses.
type JobRun struct {
	JobID            string       `json:"job_id"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       *time.Time   `json:"finished_at,omitempty"`
	Status           JobRunStatus `json:"status"`
	TotalBatches     int          `json:"total_batches"`
	CompletedBatches int          `json:"completed_batches"`
	FailedBatches    int          `json:"failed_batches"`
	ErrorMessage     *string      `json:"error_message,omitempty"`
}

// BatchRun captures the latest known state of one batch.
type BatchRun struct {
	BatchID   string    `json:"batch_id"`
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Note      string    `json:"note,omitempty"`
}

// ProgressRepository persists job and batch transitions.
type ProgressRepository interface {
	// UpsertJobStart inserts the run row or leaves an existing one untouched.
	UpsertJobStart(ctx context.Context, jobID string, totalBatches int, startedAt time.Time) error
	// RecordBatch upserts the latest status of a batch.
	RecordBatch(ctx context.Context, run BatchRun) error
	// UpdateJobCounts stores the completed/failed counters.
	UpdateJobCounts(ctx context.Context, jobID string, completed, failed int) error
	// CompleteJob marks the run finished with the provided status and error.
	CompleteJob(ctx context.Context, jobID string, finishedAt time.Time, status JobRunStatus, errMsg *string) error

	// GetJob loads a single job run or returns ErrNotFound.
	GetJob(ctx context.Context, jobID string) (JobRun, error)
	// ListJobs returns job runs filtered by optional status plus limit/offset.
	ListJobs(ctx context.Context, status *JobRunStatus, limit, offset int) ([]JobRun, error)
	// ListJobBatches returns batch runs for one job ordered by batch id.
	ListJobBatches(ctx context.Context, jobID string, limit, offset int) ([]BatchRun, error)
}
