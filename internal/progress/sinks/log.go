package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/progress"
)

// LogSink writes one structured log line per progress event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("stage", string(evt.Stage)),
			zap.Int("completed", evt.Completed),
			zap.Int("failed", evt.Failed),
			zap.Int("total", evt.Total),
		}
		if evt.BatchID != "" {
			fields = append(fields, zap.String("batch_id", evt.BatchID))
		}
		if evt.Results > 0 {
			fields = append(fields, zap.Int("results", evt.Results))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Stage == progress.StageBatchFailed || evt.Stage == progress.StageJobError {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
