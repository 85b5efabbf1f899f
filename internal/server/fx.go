// Package server builds the long-running services from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/api"
	"github.com/JakeFAU/kgr-crawler/internal/clock"
	"github.com/JakeFAU/kgr-crawler/internal/config"
	"github.com/JakeFAU/kgr-crawler/internal/dispatcher"
	"github.com/JakeFAU/kgr-crawler/internal/events"
	"github.com/JakeFAU/kgr-crawler/internal/id/uuid"
	"github.com/JakeFAU/kgr-crawler/internal/logging"
	"github.com/JakeFAU/kgr-crawler/internal/metrics"
	"github.com/JakeFAU/kgr-crawler/internal/partition"
	"github.com/JakeFAU/kgr-crawler/internal/progress"
	queueMemory "github.com/JakeFAU/kgr-crawler/internal/queue/memory"
	"github.com/JakeFAU/kgr-crawler/internal/score"
	pgstore "github.com/JakeFAU/kgr-crawler/internal/storage/postgres"
	"github.com/JakeFAU/kgr-crawler/internal/telemetry"
	"github.com/JakeFAU/kgr-crawler/internal/tracker"
	"github.com/JakeFAU/kgr-crawler/internal/worker"
)

// App contains the server's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	tracker         *tracker.Tracker
	progressHub     *progress.Hub
	queue           *queueMemory.Queue
	pool            *worker.Pool
	poolDone        chan struct{}
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	gcsClient       *storage.Client
	redisClient     *goredis.Client
	progressRepo    *pgstore.ProgressStore
	closers         []func()
	tracerShutdown  func(context.Context) error

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.pool != nil {
		a.poolDone = make(chan struct{})
		go func() {
			defer close(a.poolDone)
			a.logger.Info("worker pool started", zap.Int("size", a.pool.Size()))
			a.pool.Run(a.baseCtx)
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close stops background work and releases clients.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.baseCancel()
	if a.poolDone != nil {
		select {
		case <-a.poolDone:
		case <-ctx.Done():
			a.logger.Warn("worker pool did not stop before shutdown deadline")
		}
	}
	if a.tracker != nil {
		a.tracker.Wait()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.progressRepo != nil {
		a.progressRepo.Close()
	}
	for _, closeFn := range a.closers {
		closeFn()
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return build(ctx, cfg, logger)
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	baseCtx, baseCancel := context.WithCancel(context.WithoutCancel(ctx))
	app := &App{cfg: cfg, logger: logger, baseCtx: baseCtx, baseCancel: baseCancel}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("dispatch", cfg.Dispatch.Backend),
		zap.String("storage", cfg.Storage.Backend),
	)

	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry)
	if err != nil {
		baseCancel()
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	metrics.Init()

	if err := app.assemble(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) assemble(ctx context.Context) error {
	cfg := a.cfg
	results, err := setupResultStore(ctx, a)
	if err != nil {
		return err
	}
	if err := setupDatabase(ctx, a); err != nil {
		return err
	}
	emitter := setupProgress(a)

	broker := events.NewBroker(events.DefaultBuffer)
	sysClock := clock.System{}
	a.tracker, err = tracker.New(results, score.NewCalculator(cfg.Score), tracker.Config{
		Policy:    cfg.Tracker.Policy(),
		Retention: cfg.Tracker.Retention,
	},
		tracker.WithPublisher(broker),
		tracker.WithEmitter(emitter),
		tracker.WithClock(sysClock),
		tracker.WithLogger(a.logger.Named("tracker")),
	)
	if err != nil {
		return fmt.Errorf("tracker init failed: %w", err)
	}

	dispatchAPI, err := setupDispatchAPI(ctx, a, results)
	if err != nil {
		return err
	}

	deps := api.Deps{
		Partitioner: partition.New(cfg.Batch.Size, sysClock),
		Dispatcher:  dispatcher.New(dispatchAPI, cfg.Dispatch.Ref, a.logger.Named("dispatcher")),
		Tracker:     a.tracker,
		Events:      broker,
		Results:     results,
		IDs:         uuid.New("req"),
		Logger:      a.logger,
		BaseContext: a.baseCtx,
	}
	if a.progressRepo != nil {
		deps.Runs = a.progressRepo
	}
	if a.redisClient != nil {
		deps.Ready = append(deps.Ready, func(ctx context.Context) error {
			return a.redisClient.Ping(ctx).Err()
		})
	}
	a.apiServer = api.NewServer(deps, *cfg)
	return nil
}
