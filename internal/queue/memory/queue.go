// Package memory provides an in-process batch queue for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// ErrClosed is returned once the queue has been closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch        chan keyword.BatchRequest
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan keyword.BatchRequest, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a batch request or returns when ctx ends or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, req keyword.BatchRequest) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- req:
		return nil
	}
}

// Dequeue pops the next request. Buffered requests are still served after Close.
func (q *Queue) Dequeue(ctx context.Context) (keyword.BatchRequest, error) {
	select {
	case <-ctx.Done():
		return keyword.BatchRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case req := <-q.ch:
		return req, nil
	case <-q.done:
		select {
		case req := <-q.ch:
			return req, nil
		default:
			return keyword.BatchRequest{}, ErrClosed
		}
	}
}

// Len reports the number of buffered requests.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting new requests.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
