package server

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcs "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/config"
	githubdispatch "github.com/JakeFAU/kgr-crawler/internal/dispatch/github"
	pubsubdispatch "github.com/JakeFAU/kgr-crawler/internal/dispatch/pubsub"
	queuedispatch "github.com/JakeFAU/kgr-crawler/internal/dispatch/queue"
	collyfetcher "github.com/JakeFAU/kgr-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/kgr-crawler/internal/fetcher/headless"
	hybridfetcher "github.com/JakeFAU/kgr-crawler/internal/fetcher/hybrid"
	ghapi "github.com/JakeFAU/kgr-crawler/internal/github"
	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/kgr-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/kgr-crawler/internal/progress/sinks"
	queueMemory "github.com/JakeFAU/kgr-crawler/internal/queue/memory"
	"github.com/JakeFAU/kgr-crawler/internal/scrape"
	"github.com/JakeFAU/kgr-crawler/internal/storage"
	pgstore "github.com/JakeFAU/kgr-crawler/internal/storage/postgres"
	"github.com/JakeFAU/kgr-crawler/internal/worker"
)

// Resources collects clients that must be released on shutdown.
type Resources struct {
	GCS    *gcs.Client
	Redis  interface{ Close() error }
	Closer []func()
}

// Close releases every held client.
func (r *Resources) Close(logger *zap.Logger) {
	if r.GCS != nil {
		if err := r.GCS.Close(); err != nil {
			logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if r.Redis != nil {
		if err := r.Redis.Close(); err != nil {
			logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	for _, closeFn := range r.Closer {
		closeFn()
	}
}

func setupResultStore(ctx context.Context, app *App) (*storage.ArtifactStore, error) {
	objects, err := newObjectStore(ctx, app.cfg, app.logger, app.attach)
	if err != nil {
		return nil, err
	}
	return newArtifactStore(app.cfg, objects), nil
}

// attach records clients created while wiring the object store.
func (a *App) attach(res clientSet) {
	if res.gcs != nil {
		a.gcsClient = res.gcs
	}
	if res.redis != nil {
		a.redisClient = res.redis
	}
}

func newArtifactStore(cfg *config.Config, objects storage.ObjectStore) *storage.ArtifactStore {
	throttle := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Storage.ReadRPS,
		DefaultBurst: cfg.Storage.ReadBurst,
	})
	return storage.NewArtifactStore(objects, cfg.Storage.Prefix, cfg.Storage.Backend, storage.WithThrottle(throttle))
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.Database.DSN == "" {
		app.logger.Info("no database DSN configured, job runs will not be persisted")
		return nil
	}
	if app.cfg.Database.Migrate {
		if err := pgstore.RunMigrations(app.cfg.Database.DSN); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		app.logger.Info("database migrations applied")
	}
	repo, err := pgstore.NewProgressStore(ctx, app.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("progress store init failed: %w", err)
	}
	app.progressRepo = repo
	return nil
}

func setupProgress(app *App) progress.Emitter {
	sinks := buildSinks(app)
	if len(sinks) == 0 {
		app.logger.Info("progress sinks disabled")
		return progress.NopEmitter{}
	}
	hubCfg := progress.Config{
		BufferSize: app.cfg.Progress.BufferSize,
		Logger:     app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinks...)
	app.logger.Info("progress hub initialized", zap.Int("sinks", len(sinks)))
	return app.progressHub
}

func buildSinks(app *App) []progress.Sink {
	var sinks []progress.Sink
	if app.cfg.Progress.Log {
		sinks = append(sinks, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	if app.cfg.Progress.Prometheus {
		sink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			app.logger.Warn("prometheus progress sink disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if app.cfg.Progress.Store && app.progressRepo != nil {
		sinks = append(sinks, progresssinks.NewStoreSink(app.progressRepo, app.logger.Named("progress_store")))
	}
	return sinks
}

func setupDispatchAPI(ctx context.Context, app *App, results *storage.ArtifactStore) (keyword.DispatchAPI, error) {
	cfg := app.cfg
	switch cfg.Dispatch.Backend {
	case config.DispatchGitHub:
		client, err := ghapi.NewClient(ctx, cfg.Dispatch.GitHub.API)
		if err != nil {
			return nil, fmt.Errorf("github client init failed: %w", err)
		}
		app.logger.Info("dispatching via GitHub workflow",
			zap.String("repository", cfg.Dispatch.GitHub.API.Repository),
			zap.String("workflow", cfg.Dispatch.GitHub.Workflow),
		)
		d, err := githubdispatch.New(client, githubdispatch.Config{
			Workflow: cfg.Dispatch.GitHub.Workflow,
			Ref:      cfg.Dispatch.Ref,
		})
		if err != nil {
			return nil, fmt.Errorf("github dispatcher init failed: %w", err)
		}
		return d, nil
	case config.DispatchPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Dispatch.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubClient = client
		app.pubsubPublisher = client.Publisher(cfg.Dispatch.PubSub.Topic)
		app.logger.Info("dispatching via Pub/Sub",
			zap.String("project", cfg.Dispatch.PubSub.ProjectID),
			zap.String("topic", cfg.Dispatch.PubSub.Topic),
		)
		return pubsubdispatch.New(app.pubsubPublisher), nil
	default:
		processor, closeFn, err := NewBatchProcessor(cfg, results, app.logger)
		if err != nil {
			return nil, err
		}
		if closeFn != nil {
			app.closers = append(app.closers, closeFn)
		}
		app.queue = queueMemory.NewQueue(cfg.Dispatch.Queue.Depth)
		app.pool = worker.NewPool(app.queue, processor, cfg.Dispatch.Queue.Workers, app.logger.Named("worker"))
		app.logger.Info("dispatching to in-process workers",
			zap.Int("workers", cfg.Dispatch.Queue.Workers),
			zap.Int("depth", cfg.Dispatch.Queue.Depth),
		)
		return queuedispatch.New(app.queue), nil
	}
}

// NewFetcher builds the configured search fetcher. The returned close
// function is nil when the fetcher holds no resources.
func NewFetcher(cfg *config.Config, logger *zap.Logger) (keyword.Fetcher, func(), error) {
	sc := cfg.Scrape
	plain := collyfetcher.New(collyfetcher.Config{
		UserAgent:      sc.UserAgent,
		AcceptLanguage: sc.AcceptLanguage,
		Timeout:        sc.QueryTimeout,
	})
	if sc.Fetcher != config.FetcherHeadless && sc.Fetcher != config.FetcherHybrid {
		return plain, nil, nil
	}
	rendered, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       sc.Headless.MaxParallel,
		UserAgent:         sc.UserAgent,
		AcceptLanguage:    sc.AcceptLanguage,
		NavigationTimeout: sc.Headless.NavigationTimeout,
		WaitSelector:      sc.Selector,
		ExecPath:          sc.Headless.ExecPath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	if sc.Fetcher == config.FetcherHeadless {
		return rendered, rendered.Close, nil
	}
	f, err := hybridfetcher.New(plain, rendered, hybridfetcher.NewDetector(sc.Selector, 0), logger.Named("fetcher"))
	if err != nil {
		rendered.Close()
		return nil, nil, fmt.Errorf("hybrid fetcher init failed: %w", err)
	}
	return f, rendered.Close, nil
}

// NewBatchProcessor wires fetcher, scrape engine and artifact writer into a
// worker.BatchWorker.
func NewBatchProcessor(
	cfg *config.Config,
	writer worker.ArtifactWriter,
	logger *zap.Logger,
) (*worker.BatchWorker, func(), error) {
	fetcher, closeFn, err := NewFetcher(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	engine := scrape.NewEngine(fetcher, nil, scrape.Config{
		BaseURL:      cfg.Scrape.BaseURL,
		Selector:     cfg.Scrape.Selector,
		Delay:        cfg.Scrape.Delay,
		RetryDelay:   cfg.Scrape.RetryDelay,
		QueryTimeout: cfg.Scrape.QueryTimeout,
		RetryTimeout: cfg.Scrape.RetryTimeout,
	}, logger.Named("scrape"))
	return worker.NewBatchWorker(engine, writer, logger.Named("worker")), closeFn, nil
}

// NewArtifactStore builds the configured artifact store for processes that
// are not the API server. Clients it opens are recorded in res.
func NewArtifactStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, res *Resources) (*storage.ArtifactStore, error) {
	objects, err := newObjectStore(ctx, cfg, logger, func(c clientSet) {
		if c.gcs != nil {
			res.GCS = c.gcs
		}
		if c.redis != nil {
			res.Redis = c.redis
		}
	})
	if err != nil {
		return nil, err
	}
	return newArtifactStore(cfg, objects), nil
}
