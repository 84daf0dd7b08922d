// Package bridge forwards host events to a message broker topic and owns
// the lifecycle of the producer client behind it.
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/miladsoleymani/eventbridge/core"
)

// Bridge is the event callback. It encodes each record, enqueues the
// payload on the topic and polls the client so delivery reports surface.
//
// Delivery is at-most-once and unconfirmed: a message the local queue
// rejects is dropped, and a failed delivery report is only logged. Reports
// are not correlated with the event that produced them.
//
// A Bridge holds no mutable state and is safe for concurrent use. It never
// creates or closes the client or topic it was given.
type Bridge struct {
	client  core.Client
	topic   core.Topic
	encoder core.Encoder
	logger  *slog.Logger
}

// NewBridge creates a Bridge publishing to topic through client.
func NewBridge(client core.Client, topic core.Topic, enc core.Encoder, logger *slog.Logger) *Bridge {
	if enc == nil {
		enc = core.JSONEncoder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{client: client, topic: topic, encoder: enc, logger: logger}
}

// Handle runs one event through the bridge and reports what went wrong,
// after logging it. It is the innermost handler of the middleware chain.
func (b *Bridge) Handle(ctx context.Context, rec core.Record) error {
	payload, err := b.encoder.Encode(rec)
	if err != nil {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "failed to encode event",
			slog.String("event", rec.Class()),
			slog.String("error", err.Error()))
		return fmt.Errorf("eventbridge: encode event: %w", err)
	}

	err = b.topic.Enqueue(payload)
	if err != nil {
		b.logger.LogAttrs(ctx, slog.LevelWarn, "failed to produce to topic",
			slog.String("topic", b.topic.Name()),
			slog.String("error", err.Error()))
		err = fmt.Errorf("%w: topic %q: %w", core.ErrEnqueue, b.topic.Name(), err)
	}

	b.client.Poll()
	return err
}

// OnEvent is a core.EventHandler. Failures are logged and swallowed.
func (b *Bridge) OnEvent(rec core.Record) {
	_ = b.Handle(context.Background(), rec)
}
