package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart        Stage = "JOB_START"
	StageBatchDispatched Stage = "BATCH_DISPATCHED"
	StageBatchDone       Stage = "BATCH_DONE"
	StageBatchFailed     Stage = "BATCH_FAILED"
	StageJobDone         Stage = "JOB_DONE"
	StageJobError        Stage = "JOB_ERROR"
)

// Event captures a single job or batch milestone.
type Event struct {
	// JobID identifies the job the event belongs to.
	JobID string
	// BatchID is set for batch-level stages.
	BatchID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Completed, Failed and Total are the job counters after the transition.
	Completed int
	Failed    int
	Total     int
	// Results is the number of keyword results merged by a BATCH_DONE.
	Results int
	// Dur is the job wall time on terminal stages.
	Dur time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageBatchDispatched, StageBatchDone, StageBatchFailed:
		if e.BatchID == "" {
			return fmt.Errorf("%s requires batch id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Completed < 0 || e.Failed < 0 || e.Completed+e.Failed > e.Total {
		return errors.New("counters out of range")
	}
	return nil
}

// Terminal reports whether the stage ends a job.
func (s Stage) Terminal() bool {
	return s == StageJobDone || s == StageJobError
}
