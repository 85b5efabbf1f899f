// Package tracker polls the result store for dispatched batches, merges their
// artifacts, and scores a job once every batch is terminal.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/artifact"
	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/metrics"
	"github.com/JakeFAU/kgr-crawler/internal/progress"
	"github.com/JakeFAU/kgr-crawler/internal/score"
)

var (
	// ErrJobExists is returned when a job id is tracked twice.
	ErrJobExists = errors.New("job already tracked")
	// ErrJobProcessing is returned when results are requested before a job is terminal.
	ErrJobProcessing = errors.New("job still processing")
)

// Config tunes a Tracker.
type Config struct {
	Policy PollPolicy
	// Retention is how long terminal jobs stay queryable. Zero keeps them forever.
	Retention time.Duration
}

// Tracker owns the per-job state machine Processing -> Complete | PartialFailure.
type Tracker struct {
	store     keyword.ResultStore
	calc      *score.Calculator
	publisher keyword.Publisher
	emitter   progress.Emitter
	clock     keyword.Clock
	cfg       Config
	logger    *zap.Logger

	mu       sync.RWMutex
	jobs     map[string]*jobState
	reserved map[string]struct{}
	wg       sync.WaitGroup
}

type jobState struct {
	mu       sync.Mutex
	job      keyword.Job
	merged   map[string]struct{}
	failures map[string]int
	results  []keyword.KeywordResult
	status   keyword.JobStatus
	started  time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithPublisher sends every transition to p.
func WithPublisher(p keyword.Publisher) Option {
	return func(t *Tracker) { t.publisher = p }
}

// WithEmitter reports milestones to e.
func WithEmitter(e progress.Emitter) Option {
	return func(t *Tracker) { t.emitter = e }
}

// WithClock overrides the time source.
func WithClock(c keyword.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// New builds a Tracker over store and calc.
func New(store keyword.ResultStore, calc *score.Calculator, cfg Config, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("result store is required")
	}
	if calc == nil {
		calc = score.NewCalculator(score.DefaultCoefficients())
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("poll policy: %w", err)
	}
	t := &Tracker{
		store: store,
		calc:  calc,
		cfg:   cfg,
		jobs:     make(map[string]*jobState),
		reserved: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.emitter == nil {
		t.emitter = progress.NopEmitter{}
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t, nil
}

// Reserve claims jobID before its batches are dispatched. It fails with
// ErrJobExists while the id is tracked or already reserved; Register consumes
// the reservation.
func (t *Tracker) Reserve(jobID string) error {
	if jobID == "" {
		return &keyword.ValidationError{Field: "id", Reason: "job id is required"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.jobs[jobID]; exists {
		return fmt.Errorf("%s: %w", jobID, ErrJobExists)
	}
	if _, held := t.reserved[jobID]; held {
		return fmt.Errorf("%s: %w", jobID, ErrJobExists)
	}
	t.reserved[jobID] = struct{}{}
	return nil
}

// Release drops a reservation that will not be registered.
func (t *Tracker) Release(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.reserved, jobID)
}

// Register starts tracking a dispatched job without polling it. Batches the
// dispatcher already failed count as failed from the start.
func (t *Tracker) Register(job *keyword.Job) (keyword.JobStatus, error) {
	if job == nil || job.ID == "" || len(job.Batches) == 0 {
		return keyword.JobStatus{}, &keyword.ValidationError{Field: "job", Reason: "job id and batches are required"}
	}
	js := &jobState{
		job:      cloneJob(job),
		merged:   make(map[string]struct{}),
		failures: make(map[string]int),
		started:  t.now(),
	}
	js.mu.Lock()
	defer js.mu.Unlock()

	t.mu.Lock()
	if _, exists := t.jobs[job.ID]; exists {
		t.mu.Unlock()
		return keyword.JobStatus{}, fmt.Errorf("%s: %w", job.ID, ErrJobExists)
	}
	t.jobs[job.ID] = js
	delete(t.reserved, job.ID)
	t.mu.Unlock()

	js.status = keyword.JobStatus{
		JobID:        js.job.ID,
		TotalBatches: len(js.job.Batches),
		Status:       keyword.StatusProcessing,
	}
	for i := range js.job.Batches {
		// pending batches were never submitted and can no longer complete
		if js.job.Batches[i].Status == keyword.BatchPending {
			js.job.Batches[i].Status = keyword.BatchFailed
		}
	}
	t.refreshCounts(js)
	t.emit(js, progress.Event{Stage: progress.StageJobStart})
	for _, b := range js.job.Batches {
		if b.Status == keyword.BatchFailed {
			t.emit(js, progress.Event{Stage: progress.StageBatchFailed, BatchID: b.ID(), Note: "dispatch rejected"})
			continue
		}
		t.emit(js, progress.Event{Stage: progress.StageBatchDispatched, BatchID: b.ID()})
	}
	t.logger.Info("tracking job",
		zap.String("job_id", js.job.ID),
		zap.Int("batches", js.status.TotalBatches),
		zap.Int("failed_at_dispatch", js.status.FailedBatches),
	)
	if t.allTerminal(js) {
		t.finalize(js)
	} else {
		t.publish(js)
	}
	return js.status, nil
}

// Track registers job and polls it in the background until it is terminal or
// ctx ends.
func (t *Tracker) Track(ctx context.Context, job *keyword.Job) (keyword.JobStatus, error) {
	st, err := t.Register(job)
	if err != nil {
		return keyword.JobStatus{}, err
	}
	t.wg.Add(1)
	go t.poll(ctx, job.ID, st.Status.Terminal())
	return st, nil
}

// Wait blocks until every polling goroutine has returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func (t *Tracker) poll(ctx context.Context, jobID string, terminal bool) {
	defer t.wg.Done()
	interval := t.cfg.Policy.Interval
	for !terminal {
		if !sleep(ctx, interval) {
			return
		}
		progressed, done, err := t.tick(ctx, jobID)
		if err != nil {
			return
		}
		terminal = done
		interval = t.cfg.Policy.Next(interval, progressed)
	}
	if t.cfg.Retention > 0 && sleep(ctx, t.cfg.Retention) {
		t.Forget(jobID)
	}
}

// PollOnce performs one synchronous tick for jobID and returns the resulting status.
func (t *Tracker) PollOnce(ctx context.Context, jobID string) (keyword.JobStatus, error) {
	if _, _, err := t.tick(ctx, jobID); err != nil {
		return keyword.JobStatus{}, err
	}
	return t.Status(jobID)
}

// tick polls every dispatched batch of one job once. Result store reads run
// without the job lock so status queries stay responsive.
func (t *Tracker) tick(ctx context.Context, jobID string) (progressed, terminal bool, err error) {
	js, err := t.lookup(jobID)
	if err != nil {
		return false, false, err
	}
	targets, done := t.pending(js)
	if done {
		return false, true, nil
	}
	for _, target := range targets {
		if ctx.Err() != nil {
			return progressed, false, nil
		}
		res, ok := t.fetchBatch(ctx, target)
		if !ok {
			return progressed, false, nil
		}
		js.mu.Lock()
		if t.applyBatch(js, target, res) {
			progressed = true
			t.refreshCounts(js)
			t.publish(js)
		}
		js.mu.Unlock()
	}

	js.mu.Lock()
	defer js.mu.Unlock()
	if js.status.Status.Terminal() {
		return progressed, true, nil
	}
	if t.allTerminal(js) {
		t.finalize(js)
		return true, true, nil
	}
	return progressed, false, nil
}

type batchTarget struct {
	index    int
	id       string
	keywords []string
}

type fetchResult struct {
	art      keyword.Artifact
	results  []keyword.KeywordResult
	getErr   error
	badShape error
}

// pending lists the dispatched batches of js and reports whether the job is terminal.
func (t *Tracker) pending(js *jobState) ([]batchTarget, bool) {
	js.mu.Lock()
	defer js.mu.Unlock()
	if js.status.Status.Terminal() {
		return nil, true
	}
	var targets []batchTarget
	for i, b := range js.job.Batches {
		if b.Status != keyword.BatchDispatched {
			continue
		}
		if _, done := js.merged[b.ID()]; done {
			continue
		}
		targets = append(targets, batchTarget{index: i, id: b.ID(), keywords: b.Keywords})
	}
	return targets, false
}

// fetchBatch reads and validates one artifact. It reports false when ctx ended mid-read.
func (t *Tracker) fetchBatch(ctx context.Context, target batchTarget) (fetchResult, bool) {
	art, err := t.store.Get(ctx, target.id)
	if err != nil {
		if !errors.Is(err, keyword.ErrArtifactNotFound) && ctx.Err() != nil {
			return fetchResult{}, false
		}
		return fetchResult{getErr: err}, true
	}
	results, err := artifact.Decode(art.Data)
	if err == nil {
		err = coversBatch(results, target.keywords)
	}
	return fetchResult{art: art, results: results, badShape: err}, true
}

// applyBatch folds a fetch into js under its lock and reports whether the batch changed state.
func (t *Tracker) applyBatch(js *jobState, target batchTarget, res fetchResult) bool {
	b := &js.job.Batches[target.index]
	if b.Status != keyword.BatchDispatched {
		return false
	}
	id := target.id
	if _, done := js.merged[id]; done {
		return false
	}
	logger := t.logger.With(zap.String("job_id", js.job.ID), zap.String("batch_id", id))

	switch {
	case errors.Is(res.getErr, keyword.ErrArtifactNotFound):
		js.failures[id] = 0
		metrics.ObserveTrackerPoll("not_found")
		return false
	case res.getErr != nil:
		js.failures[id]++
		metrics.ObserveTrackerPoll("store_error")
		storeErr := &keyword.StoreError{BatchID: id, Err: res.getErr}
		if js.failures[id] < t.cfg.Policy.MaxStoreFailures {
			logger.Warn("result store lookup failed, retrying next tick",
				zap.Int("consecutive_failures", js.failures[id]),
				zap.Error(storeErr),
			)
			return false
		}
		logger.Error("result store failing persistently, marking batch failed", zap.Error(storeErr))
		t.failBatch(js, b, storeErr.Error())
		return true
	case res.badShape != nil:
		metrics.ObserveTrackerPoll("malformed")
		storeErr := &keyword.StoreError{BatchID: id, Err: res.badShape}
		logger.Warn("batch artifact rejected", zap.String("url", res.art.URL), zap.Error(storeErr))
		t.failBatch(js, b, storeErr.Error())
		return true
	}

	metrics.ObserveTrackerPoll("complete")
	js.merged[id] = struct{}{}
	delete(js.failures, id)
	js.results = append(js.results, res.results...)
	b.Status = keyword.BatchComplete
	metrics.ObserveBatch("complete")
	t.refreshCounts(js)
	t.emit(js, progress.Event{Stage: progress.StageBatchDone, BatchID: id, Results: len(res.results)})
	logger.Info("batch merged", zap.Int("results", len(res.results)), zap.String("url", res.art.URL))
	return true
}

func (t *Tracker) failBatch(js *jobState, b *keyword.BatchRef, note string) {
	b.Status = keyword.BatchFailed
	delete(js.failures, b.ID())
	metrics.ObserveBatch("failed")
	t.refreshCounts(js)
	t.emit(js, progress.Event{Stage: progress.StageBatchFailed, BatchID: b.ID(), Note: note})
}

func (t *Tracker) finalize(js *jobState) {
	t.refreshCounts(js)
	js.status.Results = t.calc.ScoreAll(js.results, js.job.Volumes)
	stage := progress.StageJobDone
	note := ""
	if js.status.FailedBatches == 0 {
		js.status.Status = keyword.StatusComplete
	} else {
		js.status.Status = keyword.StatusPartialFailure
		stage = progress.StageJobError
		note = fmt.Sprintf("%d of %d batches failed", js.status.FailedBatches, js.status.TotalBatches)
	}
	now := t.now()
	js.status.UpdatedAt = now
	metrics.ObserveJob(string(js.status.Status))
	t.emit(js, progress.Event{Stage: stage, Dur: now.Sub(js.started), Note: note})
	t.logger.Info("job finished",
		zap.String("job_id", js.job.ID),
		zap.String("status", string(js.status.Status)),
		zap.Int("completed", js.status.CompletedBatches),
		zap.Int("failed", js.status.FailedBatches),
		zap.Int("scored", len(js.status.Results)),
	)
	t.publish(js)
}

func (t *Tracker) refreshCounts(js *jobState) {
	completed, failed := 0, 0
	for _, b := range js.job.Batches {
		switch b.Status {
		case keyword.BatchComplete:
			completed++
		case keyword.BatchFailed:
			failed++
		}
	}
	js.status.CompletedBatches = completed
	js.status.FailedBatches = failed
	js.status.UpdatedAt = t.now()
}

func (t *Tracker) allTerminal(js *jobState) bool {
	for _, b := range js.job.Batches {
		if !b.Status.Terminal() {
			return false
		}
	}
	return true
}

func (t *Tracker) publish(js *jobState) {
	if t.publisher != nil {
		t.publisher.Publish(snapshot(js.status))
	}
}

func (t *Tracker) emit(js *jobState, evt progress.Event) {
	evt.JobID = js.job.ID
	evt.TS = t.now()
	evt.Total = len(js.job.Batches)
	evt.Completed = js.status.CompletedBatches
	evt.Failed = js.status.FailedBatches
	t.emitter.Emit(evt)
}

// Status returns the current snapshot for jobID.
func (t *Tracker) Status(jobID string) (keyword.JobStatus, error) {
	js, err := t.lookup(jobID)
	if err != nil {
		return keyword.JobStatus{}, err
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return snapshot(js.status), nil
}

// Batches returns a copy of the job's batch references.
func (t *Tracker) Batches(jobID string) ([]keyword.BatchRef, error) {
	js, err := t.lookup(jobID)
	if err != nil {
		return nil, err
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return cloneJob(&js.job).Batches, nil
}

// Filter returns the scored results of a terminal job that pass q.
func (t *Tracker) Filter(jobID string, q keyword.FilterQuery) ([]keyword.ScoredKeyword, error) {
	st, err := t.Status(jobID)
	if err != nil {
		return nil, err
	}
	if !st.Status.Terminal() {
		return nil, fmt.Errorf("%s: %w", jobID, ErrJobProcessing)
	}
	return score.Filter(st.Results, q), nil
}

// Forget drops a terminal job. Processing jobs are kept.
func (t *Tracker) Forget(jobID string) bool {
	js, err := t.lookup(jobID)
	if err != nil {
		return false
	}
	js.mu.Lock()
	terminal := js.status.Status.Terminal()
	js.mu.Unlock()
	if !terminal {
		return false
	}
	t.mu.Lock()
	if t.jobs[jobID] != js {
		t.mu.Unlock()
		return false
	}
	delete(t.jobs, jobID)
	t.mu.Unlock()
	if f, ok := t.publisher.(interface{ Forget(string) }); ok {
		f.Forget(jobID)
	}
	t.logger.Debug("forgot job", zap.String("job_id", jobID))
	return true
}

// Jobs reports the number of tracked jobs.
func (t *Tracker) Jobs() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs)
}

func (t *Tracker) lookup(jobID string) (*jobState, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	js, ok := t.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", jobID, keyword.ErrJobNotFound)
	}
	return js, nil
}

func (t *Tracker) now() time.Time {
	if t.clock == nil {
		return time.Now().UTC()
	}
	return t.clock.Now()
}

// coversBatch checks that results hold one row per search type for each batch
// keyword occurrence and no rows for keywords outside the batch.
func coversBatch(results []keyword.KeywordResult, keywords []string) error {
	type row struct {
		kw string
		st keyword.SearchType
	}
	want := make(map[string]int, len(keywords))
	for _, kw := range keywords {
		want[kw]++
	}
	seen := make(map[row]int, len(results))
	for _, r := range results {
		n, ok := want[r.Keyword]
		if !ok {
			return fmt.Errorf("%w: keyword %q is not part of the batch", keyword.ErrMalformedArtifact, r.Keyword)
		}
		key := row{kw: r.Keyword, st: r.SearchType}
		seen[key]++
		if seen[key] > n {
			return fmt.Errorf("%w: extra %s row for %q", keyword.ErrMalformedArtifact, r.SearchType, r.Keyword)
		}
	}
	for kw, n := range want {
		for _, st := range keyword.SearchTypes {
			if seen[row{kw: kw, st: st}] != n {
				return fmt.Errorf("%w: keyword %q missing from artifact", keyword.ErrMalformedArtifact, kw)
			}
		}
	}
	return nil
}

func cloneJob(job *keyword.Job) keyword.Job {
	out := *job
	out.Keywords = append([]string(nil), job.Keywords...)
	out.Batches = make([]keyword.BatchRef, len(job.Batches))
	for i, b := range job.Batches {
		b.Keywords = append([]string(nil), b.Keywords...)
		out.Batches[i] = b
	}
	out.Volumes = make(map[string]int, len(job.Volumes))
	for k, v := range job.Volumes {
		out.Volumes[k] = v
	}
	return out
}

func snapshot(st keyword.JobStatus) keyword.JobStatus {
	st.Results = append([]keyword.ScoredKeyword(nil), st.Results...)
	if len(st.Results) == 0 {
		st.Results = nil
	}
	return st
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
