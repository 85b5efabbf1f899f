package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/kgr-crawler/internal/progress"
)

// PrometheusSink derives job and batch collectors from progress events.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	batchEvents   *prometheus.CounterVec
	resultsMerged prometheus.Counter

	running *runningJobs
}

// NewPrometheusSink registers the collectors against reg (default registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgr_progress_jobs_started_total",
			Help: "Jobs that entered processing.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgr_progress_jobs_finished_total",
			Help: "Jobs that reached a terminal state, by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kgr_progress_jobs_running",
			Help: "Jobs currently processing.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kgr_progress_job_runtime_seconds",
			Help:    "Wall time from job start to terminal state.",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		}, []string{"result"}),
		batchEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgr_progress_batch_events_total",
			Help: "Batch transitions observed by the tracker, by stage.",
		}, []string{"stage"}),
		resultsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgr_progress_results_merged_total",
			Help: "Keyword results merged from completed batches.",
		}),
		running: &runningJobs{ids: make(map[string]struct{})},
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsFinished,
		s.jobsRunning,
		s.jobRuntime,
		s.batchEvents,
		s.resultsMerged,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			if s.running.start(evt.JobID) {
				s.jobsRunning.Inc()
			}
		case progress.StageJobDone:
			s.finish(evt, "complete")
		case progress.StageJobError:
			s.finish(evt, "partial_failure")
		case progress.StageBatchDispatched, progress.StageBatchDone, progress.StageBatchFailed:
			s.batchEvents.WithLabelValues(string(evt.Stage)).Inc()
			if evt.Results > 0 {
				s.resultsMerged.Add(float64(evt.Results))
			}
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsFinished.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.running.finish(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runningJobs struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (r *runningJobs) start(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

func (r *runningJobs) finish(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}
