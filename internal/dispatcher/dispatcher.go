// Package dispatcher fans a job's batches out to the dispatch API.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
	"github.com/JakeFAU/kgr-crawler/internal/metrics"
)

// Outcome reports the dispatch result of one batch.
type Outcome struct {
	BatchID string
	Ack     keyword.Ack
	Err     error
}

// Dispatcher submits every pending batch of a job concurrently.
type Dispatcher struct {
	api    keyword.DispatchAPI
	ref    string
	logger *zap.Logger
}

// New creates a Dispatcher. ref is forwarded on every request.
func New(api keyword.DispatchAPI, ref string, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{api: api, ref: ref, logger: logger}
}

// DispatchJob submits all pending batches in parallel and waits for every
// submission to return. Accepted batches become Dispatched; rejected ones
// become Failed with a *keyword.DispatchError. There is no retry.
func (d *Dispatcher) DispatchJob(ctx context.Context, job *keyword.Job) []Outcome {
	outcomes := make([]Outcome, len(job.Batches))
	var wg sync.WaitGroup
	for i := range job.Batches {
		if job.Batches[i].Status != keyword.BatchPending {
			outcomes[i] = Outcome{BatchID: job.Batches[i].ID()}
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = d.dispatch(ctx, &job.Batches[i])
		}(i)
	}
	wg.Wait()
	return outcomes
}

func (d *Dispatcher) dispatch(ctx context.Context, batch *keyword.BatchRef) Outcome {
	id := batch.ID()
	req := keyword.BatchRequest{
		BatchID:  id,
		Keywords: append([]string(nil), batch.Keywords...),
		Ref:      d.ref,
	}
	ack, err := d.api.Submit(ctx, req)
	if err != nil {
		batch.Status = keyword.BatchFailed
		metrics.ObserveBatch("dispatch_failed")
		d.logger.Warn("batch dispatch failed", zap.String("batch_id", id), zap.Error(err))
		return Outcome{BatchID: id, Err: &keyword.DispatchError{BatchID: id, Err: err}}
	}
	batch.Status = keyword.BatchDispatched
	metrics.ObserveBatch("dispatched")
	d.logger.Debug("batch dispatched", zap.String("batch_id", id), zap.String("ack", ack.Reference))
	return Outcome{BatchID: id, Ack: ack}
}

// Failed counts outcomes that carry an error.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}
