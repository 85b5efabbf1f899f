package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/kgr-crawler/internal/keyword"
)

// Processor handles one decoded batch request.
type Processor interface {
	Process(ctx context.Context, req keyword.BatchRequest) (string, error)
}

// Receiver pulls batch requests from a subscription and processes them.
type Receiver struct {
	subscriber *pubsub.Subscriber
	processor  Processor
	logger     *zap.Logger
}

// NewReceiver wires a subscription to a Processor.
func NewReceiver(subscriber *pubsub.Subscriber, processor Processor, logger *zap.Logger) *Receiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Receiver{subscriber: subscriber, processor: processor, logger: logger}
}

// Run blocks until ctx ends. Malformed payloads are acked and dropped;
// processing failures are nacked for redelivery.
func (r *Receiver) Run(ctx context.Context) error {
	if r.subscriber == nil {
		return errors.New("pubsub subscriber is not configured")
	}
	err := r.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if r.handle(ctx, msg.Data, msg.Attributes) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive batches: %w", err)
	}
	return nil
}

// handle reports whether the message should be acked.
func (r *Receiver) handle(ctx context.Context, data []byte, attrs map[string]string) bool {
	req, err := DecodeRequest(data)
	if err != nil {
		r.logger.Error("dropping malformed batch message", zap.String("batch_id", attrs[BatchIDAttribute]), zap.Error(err))
		return true
	}
	if attrs != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, &carrier{attrs: attrs})
	}
	if _, err := r.processor.Process(ctx, req); err != nil {
		var vErr *keyword.ValidationError
		if errors.As(err, &vErr) {
			r.logger.Error("dropping invalid batch", zap.String("batch_id", req.BatchID), zap.Error(err))
			return true
		}
		r.logger.Warn("batch processing failed, requesting redelivery", zap.String("batch_id", req.BatchID), zap.Error(err))
		return false
	}
	return true
}

// DecodeRequest parses a published batch request.
func DecodeRequest(data []byte) (keyword.BatchRequest, error) {
	var req keyword.BatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return keyword.BatchRequest{}, fmt.Errorf("decode batch request: %w", err)
	}
	if req.BatchID == "" || len(req.Keywords) == 0 {
		return keyword.BatchRequest{}, &keyword.ValidationError{Field: "batch", Reason: "batch id and keywords are required"}
	}
	return req, nil
}
