package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/kgr-crawler/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	now := time.Now()

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "j", BatchID: "j-batch1", TS: now, Stage: progress.StageBatchDone, Completed: 1, Total: 2, Results: 6},
		{JobID: "j", BatchID: "j-batch2", TS: now, Stage: progress.StageBatchFailed, Completed: 1, Failed: 1, Total: 2, Note: "malformed"},
	}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "j-batch1", entries[0].ContextMap()["batch_id"])
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "malformed", entries[1].ContextMap()["note"])
}
