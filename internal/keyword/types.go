// Package keyword defines core types shared across the KGR pipeline.
package keyword

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SearchType identifies which title-restricted query produced a count.
type SearchType string

// Supported search types, in the order the scrape engine issues them.
const (
	SearchIntitle    SearchType = "intitle"
	SearchAllintitle SearchType = "allintitle"
)

// SearchTypes lists every query mode in scrape order.
var SearchTypes = []SearchType{SearchIntitle, SearchAllintitle}

// Valid reports whether t is a known search type.
func (t SearchType) Valid() bool {
	return t == SearchIntitle || t == SearchAllintitle
}

// BatchStatus represents the lifecycle state of one batch.
type BatchStatus string

// Batch status values.
const (
	BatchPending    BatchStatus = "pending"
	BatchDispatched BatchStatus = "dispatched"
	BatchComplete   BatchStatus = "complete"
	BatchFailed     BatchStatus = "failed"
)

// Terminal reports whether the batch will not change state again.
func (s BatchStatus) Terminal() bool {
	return s == BatchComplete || s == BatchFailed
}

// Status represents the aggregate state of a job.
type Status string

// Job status values.
const (
	StatusProcessing     Status = "processing"
	StatusComplete       Status = "complete"
	StatusPartialFailure Status = "partial_failure"
)

// Terminal reports whether the job has finished.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusPartialFailure
}

const batchSeparator = "-batch"

// BatchKey identifies a batch by its job and 1-based index.
type BatchKey struct {
	JobID string `json:"job_id"`
	Index int    `json:"index"`
}

// String renders the key as "<jobId>-batch<N>".
func (k BatchKey) String() string {
	return k.JobID + batchSeparator + strconv.Itoa(k.Index)
}

// ParseBatchKey reverses BatchKey.String. The split happens on the last
// separator so job ids that contain "-batch" still round-trip.
func ParseBatchKey(raw string) (BatchKey, error) {
	idx := strings.LastIndex(raw, batchSeparator)
	if idx <= 0 {
		return BatchKey{}, fmt.Errorf("parse batch key %q: missing %q suffix", raw, batchSeparator)
	}
	n, err := strconv.Atoi(raw[idx+len(batchSeparator):])
	if err != nil || n < 1 {
		return BatchKey{}, fmt.Errorf("parse batch key %q: invalid index", raw)
	}
	return BatchKey{JobID: raw[:idx], Index: n}, nil
}

// BatchRef is one partition of a job's keyword list.
type BatchRef struct {
	Key      BatchKey    `json:"key"`
	Keywords []string    `json:"keywords"`
	Status   BatchStatus `json:"status"`
}

// ID returns the string form of the batch key.
func (b BatchRef) ID() string {
	return b.Key.String()
}

// Job is a partitioned keyword submission.
type Job struct {
	ID        string         `json:"id"`
	Keywords  []string       `json:"keywords"`
	Batches   []BatchRef     `json:"batches"`
	Volumes   map[string]int `json:"volumes,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// KeywordResult is a single extracted count.
type KeywordResult struct {
	Keyword    string     `json:"keyword"`
	SearchType SearchType `json:"searchType"`
	Count      int        `json:"count"`
}

// ScoredKeyword holds the derived metrics for one keyword.
type ScoredKeyword struct {
	Keyword          string  `json:"keyword"`
	SearchVolume     int     `json:"search_volume"`
	AllintitleCount  int     `json:"allintitle_count"`
	IntitleCount     int     `json:"intitle_count"`
	KGRScore         float64 `json:"kgr_score"`
	DifficultyScore  float64 `json:"difficulty_score"`
	OpportunityScore float64 `json:"opportunity_score"`
	Band             string  `json:"band"`
	// Ranked is false when no search volume was available; KGRScore then
	// carries the UnrankedKGR sentinel.
	Ranked bool `json:"ranked"`
}

// UnrankedKGR marks a keyword whose KGR could not be computed.
const UnrankedKGR = -1.0

// JobStatus is the aggregate view of a job published to clients.
type JobStatus struct {
	JobID            string          `json:"job_id"`
	TotalBatches     int             `json:"totalBatches"`
	CompletedBatches int             `json:"completedBatches"`
	FailedBatches    int             `json:"failedBatches"`
	Status           Status          `json:"status"`
	Results          []ScoredKeyword `json:"results,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// BatchRequest is the payload submitted to the dispatch API.
type BatchRequest struct {
	BatchID  string   `json:"batch_id"`
	Keywords []string `json:"keywords"`
	Ref      string   `json:"ref,omitempty"`
}

// Ack confirms the dispatch API accepted a request.
type Ack struct {
	// Reference is the backend-specific acceptance handle (message id, run ref).
	Reference string `json:"reference,omitempty"`
}

// Artifact is the raw content of one batch result plus its content address.
type Artifact struct {
	Data []byte
	URL  string
}

// FilterQuery holds the pull-style result thresholds.
type FilterQuery struct {
	MinSearchVolume int
	// MaxKGR is ignored when zero or negative.
	MaxKGR float64
}
