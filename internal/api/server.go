package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/config"
	"github.com/JakeFAU/kgr-crawler/internal/dispatcher"
	"github.com/JakeFAU/kgr-crawler/internal/events"
	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/metrics"
	"github.com/JakeFAU/kgr-crawler/internal/partition"
	"github.com/JakeFAU/kgr-crawler/internal/store"
)

const (
	defaultRequestTimeout = 60 * time.Second
	defaultMaxUploadBytes = 10 << 20
	defaultHeartbeat      = 15 * time.Second
)

// BatchDispatcher submits the batches of a partitioned job.
type BatchDispatcher interface {
	DispatchJob(ctx context.Context, job *keyword.Job) []dispatcher.Outcome
}

// JobTracker follows dispatched jobs until they finish.
type JobTracker interface {
	Reserve(jobID string) error
	Release(jobID string)
	Track(ctx context.Context, job *keyword.Job) (keyword.JobStatus, error)
	Status(jobID string) (keyword.JobStatus, error)
	Batches(jobID string) ([]keyword.BatchRef, error)
	Filter(jobID string, q keyword.FilterQuery) ([]keyword.ScoredKeyword, error)
}

// EventSource streams job status snapshots.
type EventSource interface {
	Subscribe(jobID string) (*events.Subscription, error)
	Unsubscribe(sub *events.Subscription)
}

// ReadyCheck reports whether a downstream dependency is usable.
type ReadyCheck func(ctx context.Context) error

// Deps bundles the collaborators behind the HTTP surface. Runs and Ready are optional.
type Deps struct {
	Partitioner *partition.Partitioner
	Dispatcher  BatchDispatcher
	Tracker     JobTracker
	Events      EventSource
	Results     keyword.ResultStore
	Runs        store.ProgressRepository
	Ready       []ReadyCheck
	IDs         keyword.IDGenerator
	Logger      *zap.Logger
	// BaseContext scopes background polling; it outlives individual requests.
	BaseContext context.Context
}

// Server wires HTTP handlers to the pipeline components.
type Server struct {
	router    chi.Router
	deps      Deps
	cfg       config.Config
	logger    *zap.Logger
	heartbeat time.Duration
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.Partitioner == nil {
		deps.Partitioner = partition.New(cfg.Batch.Size, nil)
	}
	s := &Server{
		deps:      deps,
		cfg:       cfg,
		logger:    deps.Logger.Named("api"),
		heartbeat: defaultHeartbeat,
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(deps.IDs))
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		// the event stream is long-lived and must not sit behind the timeout handler
		r.Get("/jobs/{job_id}/events", s.streamJobEvents)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(timeout))
			r.Post("/jobs", s.submitJob)
			r.Get("/jobs/{job_id}", s.getJob)
			r.Get("/jobs/{job_id}/results", s.getJobResults)
			r.Get("/batches/{batch_id}/artifact", s.getBatchArtifact)
			if deps.Runs != nil {
				runs := NewRunsHandler(deps.Runs, s.logger)
				r.Get("/runs", runs.ListRuns)
				r.Get("/runs/{job_id}", runs.GetRun)
				r.Get("/runs/{job_id}/batches", runs.ListRunBatches)
			}
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	for _, check := range s.deps.Ready {
		if err := check(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
