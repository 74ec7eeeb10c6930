package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/pixrelay/internal/domain/charge"
	"github.com/redis/go-redis/v9"
)

// DefaultEventStream is where charge lifecycle events are appended.
const DefaultEventStream = "pix:charges"

const streamMaxLen = 100000

// EventProducer appends charge events to a Redis stream for merchant-side
// consumers.
type EventProducer struct {
	client redis.Cmdable
	stream string
}

func NewEventProducer(client redis.Cmdable, stream string) *EventProducer {
	if stream == "" {
		stream = DefaultEventStream
	}
	return &EventProducer{client: client, stream: stream}
}

func (p *EventProducer) Publish(ctx context.Context, event charge.Event) error {
	values := map[string]any{
		"event_type":    string(event.Type),
		"txid":          event.TxID,
		"status":        string(event.Status),
		"amount":        charge.FormatCents(event.AmountCents),
		"end_to_end_id": event.EndToEndID,
		"occurred_at":   event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if event.ClientID != "" {
		values["client_id"] = event.ClientID
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish %s event for %s: %w", event.Type, event.TxID, err)
	}
	return nil
}
