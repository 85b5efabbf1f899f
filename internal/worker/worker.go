// Package worker executes batch scrapes and persists their artifacts.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/artifact"
	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/metrics"
	"github.com/JakeFAU/kgr-crawler/internal/queue/memory"
	"github.com/JakeFAU/kgr-crawler/internal/scrape"
)

// Scraper produces the keyword results of one batch.
type Scraper interface {
	Run(ctx context.Context, keywords []string) ([]keyword.KeywordResult, scrape.Stats)
}

// ArtifactWriter persists an encoded batch artifact.
type ArtifactWriter interface {
	Put(ctx context.Context, batchID string, data []byte) (string, error)
}

// Processor handles one batch request end to end.
type Processor interface {
	Process(ctx context.Context, req keyword.BatchRequest) (string, error)
}

// Queue yields batch requests for a Worker.
type Queue interface {
	Dequeue(ctx context.Context) (keyword.BatchRequest, error)
}

// BatchWorker scrapes a batch and writes the artifact to the result store.
type BatchWorker struct {
	scraper Scraper
	writer  ArtifactWriter
	logger  *zap.Logger
}

// NewBatchWorker constructs a BatchWorker.
func NewBatchWorker(scraper Scraper, writer ArtifactWriter, logger *zap.Logger) *BatchWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchWorker{scraper: scraper, writer: writer, logger: logger}
}

// Process runs the scrape for req and stores the artifact, returning its URI.
// Nothing is written when ctx ends mid-scrape.
func (w *BatchWorker) Process(ctx context.Context, req keyword.BatchRequest) (string, error) {
	if req.BatchID == "" {
		return "", &keyword.ValidationError{Field: "batch_id", Reason: "is required"}
	}
	if len(req.Keywords) == 0 {
		return "", &keyword.ValidationError{Field: "keywords", Reason: "batch has no keywords"}
	}
	logger := w.logger.With(zap.String("batch_id", req.BatchID))
	logger.Info("batch scrape started", zap.Int("keywords", len(req.Keywords)))

	results, stats := w.scraper.Run(ctx, req.Keywords)
	if err := ctx.Err(); err != nil {
		metrics.ObserveBatch("aborted")
		return "", fmt.Errorf("scrape %s: %w", req.BatchID, err)
	}
	metrics.ObserveScrape(stats.Queries, stats.Recovered, stats.Zeroed)

	data, err := artifact.Encode(results)
	if err != nil {
		metrics.ObserveBatch("encode_error")
		return "", fmt.Errorf("encode %s: %w", req.BatchID, err)
	}
	uri, err := w.writer.Put(ctx, req.BatchID, data)
	if err != nil {
		metrics.ObserveBatch("store_error")
		return "", &keyword.StoreError{BatchID: req.BatchID, Err: err}
	}
	metrics.ObserveBatch("written")
	logger.Info("batch artifact written",
		zap.String("uri", uri),
		zap.Int("results", len(results)),
		zap.Int("retried", stats.Retried),
		zap.Int("recovered", stats.Recovered),
		zap.Int("zeroed", stats.Zeroed),
	)
	return uri, nil
}

// Worker consumes queued batch requests and hands them to a Processor.
type Worker struct {
	queue     Queue
	processor Processor
	logger    *zap.Logger
}

// New constructs a Worker.
func New(queue Queue, processor Processor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, processor: processor, logger: logger}
}

// Run blocks, consuming requests until ctx finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		req, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, memory.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued batch", zap.String("batch_id", req.BatchID))
		w.handle(ctx, req)
	}
}

func (w *Worker) handle(ctx context.Context, req keyword.BatchRequest) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()
	if _, err := w.processor.Process(ctx, req); err != nil {
		w.logger.Error("batch processing failed", zap.String("batch_id", req.BatchID), zap.Error(err))
	}
}
