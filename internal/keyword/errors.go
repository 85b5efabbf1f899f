package keyword

import (
	"errors"
	"fmt"
)

var (
	// ErrArtifactNotFound is returned by result stores when a batch artifact is absent.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrJobNotFound is returned when a job id is unknown to the tracker.
	ErrJobNotFound = errors.New("job not found")
	// ErrMalformedArtifact marks an artifact that is present but structurally incomplete.
	ErrMalformedArtifact = errors.New("malformed artifact")
)

// ValidationError reports malformed or missing intake.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// DispatchError reports that the dispatch API rejected a batch.
type DispatchError struct {
	BatchID string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch batch %s: %v", e.BatchID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ExtractionError reports a single failed keyword query.
type ExtractionError struct {
	Keyword    string
	SearchType SearchType
	Err        error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s:%q: %v", e.SearchType, e.Keyword, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StoreError reports an unreachable result store or an unreadable artifact.
type StoreError struct {
	BatchID string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("result store %s: %v", e.BatchID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// TransportError reports a broken push channel.
type TransportError struct {
	JobID string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("event transport %s: %v", e.JobID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
