package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kgr-crawler/internal/storage/postgres/migrations"
	"github.com/JakeFAU/kgr-crawler/internal/store"
)

var jobRunColumns = []string{
	"job_id", "started_at", "finished_at", "status",
	"total_batches", "completed_batches", "failed_batches", "error_message",
}

func newMockStore(t *testing.T) (*ProgressStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	s, err := NewProgressStoreWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestUpsertJobStart(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec("INSERT INTO job_runs").
		WithArgs("seo-run", started, "running", 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertJobStart(context.Background(), "seo-run", 3, started))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordBatchAndCounts(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	at := time.Unix(1700000100, 0).UTC()
	mock.ExpectExec("INSERT INTO batch_runs").
		WithArgs("seo-run-batch2", "seo-run", "failed", at, "store unavailable").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE job_runs").
		WithArgs(1, 1, "seo-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.RecordBatch(context.Background(), store.BatchRun{
		BatchID:   "seo-run-batch2",
		JobID:     "seo-run",
		Status:    "failed",
		UpdatedAt: at,
		Note:      "store unavailable",
	}))
	require.NoError(t, s.UpdateJobCounts(context.Background(), "seo-run", 1, 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteJob(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	finished := time.Unix(1700000200, 0).UTC()
	note := "1 of 3 batches failed"
	mock.ExpectExec("UPDATE job_runs").
		WithArgs(finished, "partial_failure", &note, "seo-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE job_runs").
		WithArgs(finished, "complete", (*string)(nil), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.CompleteJob(context.Background(), "seo-run", finished, store.RunPartialFailure, &note))
	err := s.CompleteJob(context.Background(), "missing", finished, store.RunComplete, nil)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, s.CompleteJob(context.Background(), "seo-run", finished, store.RunRunning, nil))
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(time.Minute)
	mock.ExpectQuery("SELECT job_id").
		WithArgs("seo-run").
		WillReturnRows(mock.NewRows(jobRunColumns).
			AddRow("seo-run", started, &finished, "complete", 2, 2, 0, (*string)(nil)))
	mock.ExpectQuery("SELECT job_id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	run, err := s.GetJob(context.Background(), "seo-run")
	require.NoError(t, err)
	require.Equal(t, store.RunComplete, run.Status)
	require.Equal(t, 2, run.CompletedBatches)
	require.NotNil(t, run.FinishedAt)
	require.Nil(t, run.ErrorMessage)

	_, err = s.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsFiltersByStatus(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	status := store.RunRunning
	running := "running"
	mock.ExpectQuery("SELECT job_id").
		WithArgs(&running, 10, 0).
		WillReturnRows(mock.NewRows(jobRunColumns).
			AddRow("a", started, (*time.Time)(nil), "running", 4, 1, 0, (*string)(nil)).
			AddRow("b", started, (*time.Time)(nil), "running", 1, 0, 0, (*string)(nil)))

	runs, err := s.ListJobs(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "a", runs[0].JobID)
	require.Equal(t, 4, runs[0].TotalBatches)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobBatches(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT batch_id").
		WithArgs("seo-run", 50, 0).
		WillReturnRows(mock.NewRows([]string{"batch_id", "job_id", "status", "updated_at", "note"}).
			AddRow("seo-run-batch1", "seo-run", "complete", at, ""))
	mock.ExpectQuery("SELECT batch_id").
		WithArgs("broken", 50, 0).
		WillReturnError(errors.New("connection reset"))

	batches, err := s.ListJobBatches(context.Background(), "seo-run", 50, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, "complete", batches[0].Status)

	_, err = s.ListJobBatches(context.Background(), "broken", 50, 0)
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewProgressStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewProgressStore(context.Background(), "")
	require.Error(t, err)
	_, err = NewProgressStoreWithPool(nil)
	require.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	t.Parallel()

	entries, err := migrations.FS.ReadDir(".")
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Contains(t, names, "000001_job_runs.up.sql")
	require.Contains(t, names, "000002_batch_runs.down.sql")
}
