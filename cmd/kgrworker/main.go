package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/config"
	pubsubdispatch "github.com/JakeFAU/kgr-crawler/internal/dispatch/pubsub"
	"github.com/JakeFAU/kgr-crawler/internal/logging"
	"github.com/JakeFAU/kgr-crawler/internal/server"
	"github.com/JakeFAU/kgr-crawler/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	var bf batchFlags
	flag.StringVar(&bf.id, "id", "", "Batch id (one-shot mode)")
	flag.StringVar(&bf.keywords, "keywords", "", "Comma-separated keywords")
	flag.StringVar(&bf.csvFile, "csv-file", "", "Path to a keyword CSV file")
	flag.StringVar(&bf.csvData, "csv-data", "", "Inline keyword CSV")
	flag.BoolVar(&bf.csvBase64, "csv-base64", false, "Treat -csv-data as base64")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env failed: %v\n", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg, bf, logger); err != nil {
		logger.Error("worker failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, bf batchFlags, logger *zap.Logger) error {
	tp, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	defer func() {
		_ = tp.Shutdown(context.WithoutCancel(ctx))
	}()

	var res server.Resources
	defer res.Close(logger)

	results, err := server.NewArtifactStore(ctx, cfg, logger, &res)
	if err != nil {
		return err
	}
	processor, closeFn, err := server.NewBatchProcessor(cfg, results, logger)
	if err != nil {
		return err
	}
	if closeFn != nil {
		res.Closer = append(res.Closer, closeFn)
	}

	if bf.id == "" {
		return receive(ctx, cfg, processor, logger)
	}

	req, err := bf.request()
	if err != nil {
		return err
	}
	key, err := processor.Process(ctx, req)
	if err != nil {
		return fmt.Errorf("batch %s: %w", req.BatchID, err)
	}
	logger.Info("batch complete",
		zap.String("batch_id", req.BatchID),
		zap.Int("keywords", len(req.Keywords)),
		zap.String("artifact", key),
	)
	return nil
}

func receive(ctx context.Context, cfg *config.Config, processor pubsubdispatch.Processor, logger *zap.Logger) error {
	ps := cfg.Dispatch.PubSub
	if ps.ProjectID == "" || ps.Subscription == "" {
		return errors.New("either -id or dispatch.pubsub project_id and subscription are required")
	}
	client, err := pubsub.NewClient(ctx, ps.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client init failed: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("pubsub client close failed", zap.Error(cerr))
		}
	}()
	logger.Info("receiving batches",
		zap.String("project", ps.ProjectID),
		zap.String("subscription", ps.Subscription),
	)
	return pubsubdispatch.NewReceiver(client.Subscriber(ps.Subscription), processor, logger.Named("receiver")).Run(ctx)
}
