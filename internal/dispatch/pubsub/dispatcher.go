// Package pubsub submits batches as Pub/Sub messages and serves them to workers.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// BatchIDAttribute carries the batch id alongside the JSON payload.
const BatchIDAttribute = "batch_id"

// Dispatcher implements keyword.DispatchAPI over a Pub/Sub topic.
type Dispatcher struct {
	publisher *pubsub.Publisher
}

var _ keyword.DispatchAPI = (*Dispatcher)(nil)

// New creates a Dispatcher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Dispatcher {
	return &Dispatcher{publisher: publisher}
}

// Submit publishes req as JSON and waits for the server message id.
func (d *Dispatcher) Submit(ctx context.Context, req keyword.BatchRequest) (keyword.Ack, error) {
	if d.publisher == nil {
		return keyword.Ack{}, errors.New("pubsub publisher is not configured")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return keyword.Ack{}, fmt.Errorf("marshal batch request: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{BatchIDAttribute: req.BatchID},
	}
	otel.GetTextMapPropagator().Inject(ctx, &carrier{attrs: msg.Attributes})

	id, err := d.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return keyword.Ack{}, fmt.Errorf("publish batch %s: %w", req.BatchID, err)
	}
	return keyword.Ack{Reference: id}, nil
}

// carrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type carrier struct {
	attrs map[string]string
}

func (c *carrier) Get(key string) string {
	return c.attrs[key]
}

func (c *carrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *carrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
