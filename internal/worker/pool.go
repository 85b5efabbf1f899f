package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Pool fans queued batches out to a fixed set of workers.
type Pool struct {
	workers []*Worker
}

// NewPool builds size workers over the same queue and processor.
func NewPool(queue Queue, processor Processor, size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := make([]*Worker, 0, size)
	for i := 0; i < size; i++ {
		workers = append(workers, New(queue, processor, logger.With(zap.Int("worker", i))))
	}
	return &Pool{workers: workers}
}

// Size reports the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Run starts all workers and blocks until every worker returns.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(wk *Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}
