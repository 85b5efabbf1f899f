package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/config"
	"github.com/JakeFAU/kgr-crawler/internal/store"
)

func TestRunsHandlerListRuns(t *testing.T) {
	t.Parallel()

	repo := &mockProgressRepo{
		jobs: []store.JobRun{{
			JobID:        "seo",
			Status:       store.RunComplete,
			StartedAt:    time.Now().Add(-time.Hour),
			TotalBatches: 2,
		}},
	}
	handler := NewRunsHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?status=complete&limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]store.JobRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["runs"], 1)
	require.NotNil(t, repo.lastStatus)
	require.Equal(t, store.RunComplete, *repo.lastStatus)
	require.Equal(t, 10, repo.lastLimit)
}

func TestRunsHandlerListRunsInvalidStatus(t *testing.T) {
	t.Parallel()

	handler := NewRunsHandler(&mockProgressRepo{}, zap.NewNop())
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/v1/runs?status=exploded", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunsHandlerGetRunNotFound(t *testing.T) {
	t.Parallel()

	handler := NewRunsHandler(&mockProgressRepo{err: store.ErrNotFound}, zap.NewNop())
	req := withJobIDParam(httptest.NewRequest(http.MethodGet, "/v1/runs/seo", nil), "seo")
	rec := httptest.NewRecorder()

	handler.GetRun(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsHandlerGetRunFailure(t *testing.T) {
	t.Parallel()

	handler := NewRunsHandler(&mockProgressRepo{err: errors.New("db down")}, zap.NewNop())
	req := withJobIDParam(httptest.NewRequest(http.MethodGet, "/v1/runs/seo", nil), "seo")
	rec := httptest.NewRecorder()

	handler.GetRun(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRunsHandlerListRunBatchesInvalidLimit(t *testing.T) {
	t.Parallel()

	handler := NewRunsHandler(&mockProgressRepo{}, zap.NewNop())
	req := withJobIDParam(httptest.NewRequest(http.MethodGet, "/v1/runs/seo/batches?limit=-1", nil), "seo")
	rec := httptest.NewRecorder()

	handler.ListRunBatches(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunsRoutesMountedWithRepository(t *testing.T) {
	t.Parallel()

	repo := &mockProgressRepo{batches: []store.BatchRun{{BatchID: "seo-batch1", JobID: "seo", Status: "complete"}}}
	srv := NewServer(Deps{Tracker: nopTracker{}, Runs: repo}, config.Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/seo/batches?limit=5000", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "seo-batch1")
	require.Equal(t, maxBatchLimit, repo.lastLimit)

	bare := NewServer(Deps{Tracker: nopTracker{}}, config.Config{})
	rec = httptest.NewRecorder()
	bare.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type mockProgressRepo struct {
	jobs       []store.JobRun
	batches    []store.BatchRun
	err        error
	lastStatus *store.JobRunStatus
	lastLimit  int
}

func (m *mockProgressRepo) UpsertJobStart(context.Context, string, int, time.Time) error {
	return m.err
}

func (m *mockProgressRepo) RecordBatch(context.Context, store.BatchRun) error {
	return m.err
}

func (m *mockProgressRepo) UpdateJobCounts(context.Context, string, int, int) error {
	return m.err
}

func (m *mockProgressRepo) CompleteJob(context.Context, string, time.Time, store.JobRunStatus, *string) error {
	return m.err
}

func (m *mockProgressRepo) GetJob(context.Context, string) (store.JobRun, error) {
	if len(m.jobs) > 0 {
		return m.jobs[0], nil
	}
	return store.JobRun{}, m.err
}

func (m *mockProgressRepo) ListJobs(_ context.Context, status *store.JobRunStatus, limit, _ int) ([]store.JobRun, error) {
	m.lastStatus = status
	m.lastLimit = limit
	return m.jobs, m.err
}

func (m *mockProgressRepo) ListJobBatches(_ context.Context, _ string, limit, _ int) ([]store.BatchRun, error) {
	m.lastLimit = limit
	return m.batches, m.err
}

func withJobIDParam(r *http.Request, jobID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("job_id", jobID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
