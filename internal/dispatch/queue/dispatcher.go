// Package queue submits batches to an in-process queue served by a worker pool.
package queue

import (
	"context"
	"fmt"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// Enqueuer accepts batch requests.
type Enqueuer interface {
	Enqueue(ctx context.Context, req keyword.BatchRequest) error
}

// Dispatcher implements keyword.DispatchAPI over an Enqueuer.
type Dispatcher struct {
	queue Enqueuer
}

var _ keyword.DispatchAPI = (*Dispatcher)(nil)

// New wraps q.
func New(q Enqueuer) *Dispatcher {
	return &Dispatcher{queue: q}
}

// Submit enqueues a copy of req.
func (d *Dispatcher) Submit(ctx context.Context, req keyword.BatchRequest) (keyword.Ack, error) {
	req.Keywords = append([]string(nil), req.Keywords...)
	if err := d.queue.Enqueue(ctx, req); err != nil {
		return keyword.Ack{}, fmt.Errorf("queue enqueue: %w", err)
	}
	return keyword.Ack{Reference: "queue:" + req.BatchID}, nil
}
