package server

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/config"
	ghapi "github.com/JakeFAU/kgr-crawler/internal/github"
	"github.com/JakeFAU/kgr-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/kgr-crawler/internal/storage/gcs"
	githubstorage "github.com/JakeFAU/kgr-crawler/internal/storage/github"
	localstorage "github.com/JakeFAU/kgr-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/kgr-crawler/internal/storage/memory"
	redisstorage "github.com/JakeFAU/kgr-crawler/internal/storage/redis"
)

type clientSet struct {
	gcs   *gcs.Client
	redis *goredis.Client
}

func newObjectStore(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	attach func(clientSet),
) (storage.ObjectStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		attach(clientSet{gcs: client})
		store, err := gcsstorage.New(client, cfg.Storage.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		logger.Info("using GCS storage backend", zap.String("bucket", cfg.Storage.GCS.Bucket))
		return store, nil
	case config.StorageRedis:
		client := redisstorage.NewClient(cfg.Storage.Redis)
		attach(clientSet{redis: client})
		store, err := redisstorage.New(client, cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis blob store init failed: %w", err)
		}
		logger.Info("using redis storage backend", zap.String("addr", cfg.Storage.Redis.Addr))
		return store, nil
	case config.StorageGitHub:
		client, err := ghapi.NewClient(ctx, cfg.Dispatch.GitHub.API)
		if err != nil {
			return nil, fmt.Errorf("github client init failed: %w", err)
		}
		store, err := githubstorage.New(client, cfg.Storage.GitHub)
		if err != nil {
			return nil, fmt.Errorf("github blob store init failed: %w", err)
		}
		logger.Info("using GitHub contents storage backend",
			zap.String("repository", cfg.Dispatch.GitHub.API.Repository),
			zap.String("branch", cfg.Storage.GitHub.Branch),
		)
		return store, nil
	case config.StorageLocal:
		store, err := localstorage.New(cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		logger.Info("using local storage backend", zap.String("path", cfg.Storage.Local.BaseDir))
		return store, nil
	default:
		logger.Info("using in-memory storage backend")
		return memoryStorage.NewBlobStore(), nil
	}
}
