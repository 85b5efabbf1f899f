package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/kgr-crawler/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow a job lifecycle.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "seo", TS: now, Stage: progress.StageJobStart, Total: 2},
		{JobID: "seo", TS: now, Stage: progress.StageJobStart, Total: 2},
		{JobID: "seo", BatchID: "seo-batch1", TS: now, Stage: progress.StageBatchDispatched, Total: 2},
		{JobID: "seo", BatchID: "seo-batch1", TS: now, Stage: progress.StageBatchDone, Completed: 1, Total: 2, Results: 60},
		{JobID: "seo", BatchID: "seo-batch2", TS: now, Stage: progress.StageBatchFailed, Completed: 1, Failed: 1, Total: 2},
		{JobID: "seo", TS: now, Stage: progress.StageJobError, Completed: 1, Failed: 1, Total: 2, Dur: 90 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsFinished.WithLabelValues("partial_failure")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsFinished.WithLabelValues("complete")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.batchEvents.WithLabelValues(string(progress.StageBatchFailed))))
	require.InDelta(t, 60.0, testutil.ToFloat64(sink.resultsMerged), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.jobRuntime, "kgr_progress_job_runtime_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
