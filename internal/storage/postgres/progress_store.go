// Package postgres provides Postgres-backed persistence for job runs.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/kgr-crawler/internal/store"
)

// pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it in tests.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ProgressStore implements store.ProgressRepository using Postgres.
type ProgressStore struct {
	pool pool
}

var _ store.ProgressRepository = (*ProgressStore)(nil)

// NewProgressStore opens a pgx pool against dsn and verifies connectivity.
func NewProgressStore(ctx context.Context, dsn string) (*ProgressStore, error) {
	if dsn == "" {
		return nil, errors.New("database.dsn is required")
	}
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &ProgressStore{pool: p}, nil
}

// NewProgressStoreWithPool wraps an existing pool.
func NewProgressStoreWithPool(p pool) (*ProgressStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &ProgressStore{pool: p}, nil
}

// Close closes the underlying connection pool.
func (s *ProgressStore) Close() {
	s.pool.Close()
}

// UpsertJobStart inserts the run row; a replayed JOB_START keeps the original start time.
func (s *ProgressStore) UpsertJobStart(ctx context.Context, jobID string, totalBatches int, startedAt time.Time) error {
	const query = `
		INSERT INTO job_runs (job_id, started_at, status, total_batches)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, jobID, startedAt, string(store.RunRunning), totalBatches); err != nil {
		return fmt.Errorf("upsert job start: %w", err)
	}
	return nil
}

// RecordBatch upserts the latest batch status.
func (s *ProgressStore) RecordBatch(ctx context.Context, run store.BatchRun) error {
	const query = `
		INSERT INTO batch_runs (batch_id, job_id, status, updated_at, note)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (batch_id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at, note = EXCLUDED.note
		WHERE batch_runs.updated_at <= EXCLUDED.updated_at;
	`
	if _, err := s.pool.Exec(ctx, query, run.BatchID, run.JobID, run.Status, run.UpdatedAt, run.Note); err != nil {
		return fmt.Errorf("record batch %s: %w", run.BatchID, err)
	}
	return nil
}

// UpdateJobCounts stores the completed/failed counters for a run.
func (s *ProgressStore) UpdateJobCounts(ctx context.Context, jobID string, completed, failed int) error {
	const query = `
		UPDATE job_runs
		SET completed_batches = $1, failed_batches = $2
		WHERE job_id = $3;
	`
	if _, err := s.pool.Exec(ctx, query, completed, failed, jobID); err != nil {
		return fmt.Errorf("update job counts: %w", err)
	}
	return nil
}

// CompleteJob marks a run finished with a status and optional error message.
func (s *ProgressStore) CompleteJob(
	ctx context.Context,
	jobID string,
	finishedAt time.Time,
	status store.JobRunStatus,
	errMsg *string,
) error {
	if !status.Valid() || status == store.RunRunning {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	const query = `
		UPDATE job_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE job_id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, finishedAt, string(status), errMsg, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const jobColumns = `job_id, started_at, finished_at, status, total_batches, completed_batches, failed_batches, error_message`

// GetJob retrieves a single job run.
func (s *ProgressStore) GetJob(ctx context.Context, jobID string) (store.JobRun, error) {
	query := `SELECT ` + jobColumns + ` FROM job_runs WHERE job_id = $1;`
	run, err := scanJobRun(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.JobRun{}, store.ErrNotFound
		}
		return store.JobRun{}, fmt.Errorf("get job: %w", err)
	}
	return run, nil
}

// ListJobs returns job runs newest first, optionally filtered by status.
func (s *ProgressStore) ListJobs(
	ctx context.Context,
	status *store.JobRunStatus,
	limit,
	offset int,
) ([]store.JobRun, error) {
	query := `SELECT ` + jobColumns + `
		FROM job_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	rows, err := s.pool.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	runs := []store.JobRun{}
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return runs, nil
}

// ListJobBatches returns the batch rows of one job.
func (s *ProgressStore) ListJobBatches(ctx context.Context, jobID string, limit, offset int) ([]store.BatchRun, error) {
	const query = `
		SELECT batch_id, job_id, status, updated_at, note
		FROM batch_runs
		WHERE job_id = $1
		ORDER BY batch_id
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list job batches: %w", err)
	}
	defer rows.Close()

	batches := []store.BatchRun{}
	for rows.Next() {
		var b store.BatchRun
		if err := rows.Scan(&b.BatchID, &b.JobID, &b.Status, &b.UpdatedAt, &b.Note); err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch rows: %w", err)
	}
	return batches, nil
}

func scanJobRun(row pgx.Row) (store.JobRun, error) {
	var (
		run    store.JobRun
		status string
	)
	err := row.Scan(
		&run.JobID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.TotalBatches,
		&run.CompletedBatches,
		&run.FailedBatches,
		&run.ErrorMessage,
	)
	if err != nil {
		return store.JobRun{}, err
	}
	run.Status = store.JobRunStatus(status)
	return run, nil
}
