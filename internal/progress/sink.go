package progress

import "context"

// Sink receives flushed event batches. Consume may be called many times and
// must return once ctx expires.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter accepts single events from the tracker.
type Emitter interface {
	Emit(evt Event)
}

// NopEmitter drops events. It is used when no sink is enabled.
type NopEmitter struct{}

// Emit implements Emitter.
func (NopEmitter) Emit(Event) {}
