package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/progress"
	"github.com/JakeFAU/kgr-crawler/internal/store"
)

// StoreSink persists job and batch transitions via a store.ProgressRepository.
// Counter updates are collapsed per job within a batch of events.
type StoreSink struct {
	repo   store.ProgressRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.ProgressRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume writes the batch in order and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	counts := make(map[string]jobCounts)
	var order []string

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			if err := s.repo.UpsertJobStart(ctx, evt.JobID, evt.Total, evt.TS); err != nil {
				return fmt.Errorf("upsert job start: %w", err)
			}
		case progress.StageBatchDispatched, progress.StageBatchDone, progress.StageBatchFailed:
			run := store.BatchRun{
				BatchID:   evt.BatchID,
				JobID:     evt.JobID,
				Status:    string(batchStatus(evt.Stage)),
				UpdatedAt: evt.TS,
				Note:      evt.Note,
			}
			if err := s.repo.RecordBatch(ctx, run); err != nil {
				return fmt.Errorf("record batch: %w", err)
			}
		case progress.StageJobDone, progress.StageJobError:
			// terminal rows are written after the counters below
		}
		if _, seen := counts[evt.JobID]; !seen {
			order = append(order, evt.JobID)
		}
		counts[evt.JobID] = jobCounts{completed: evt.Completed, failed: evt.Failed, terminal: terminalOf(evt, counts[evt.JobID])}
	}

	for _, jobID := range order {
		c := counts[jobID]
		if err := s.repo.UpdateJobCounts(ctx, jobID, c.completed, c.failed); err != nil {
			return fmt.Errorf("update job counts: %w", err)
		}
		if c.terminal == nil {
			continue
		}
		status := store.RunComplete
		var note *string
		if c.terminal.Stage == progress.StageJobError {
			status = store.RunPartialFailure
			if c.terminal.Note != "" {
				msg := c.terminal.Note
				note = &msg
			}
		}
		if err := s.repo.CompleteJob(ctx, jobID, c.terminal.TS, status, note); err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type jobCounts struct {
	completed int
	failed    int
	terminal  *progress.Event
}

func terminalOf(evt progress.Event, prev jobCounts) *progress.Event {
	if evt.Stage.Terminal() {
		e := evt
		return &e
	}
	return prev.terminal
}

func batchStatus(stage progress.Stage) keyword.BatchStatus {
	switch stage {
	case progress.StageBatchDone:
		return keyword.BatchComplete
	case progress.StageBatchFailed:
		return keyword.BatchFailed
	default:
		return keyword.BatchDispatched
	}
}
