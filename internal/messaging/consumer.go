package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"sentinelmesh/internal/events"
)

// EventConsumer feeds events received over NATS into the same ingest path
// the HTTP endpoint uses.
type EventConsumer struct {
	ingester events.Ingester
	logger   *slog.Logger
}

func NewEventConsumer(ingester events.Ingester, logger *slog.Logger) *EventConsumer {
	return &EventConsumer{ingester: ingester, logger: logger}
}

// Handle decodes one wire event and ingests it. Malformed messages are
// dropped; there is no reply channel to report them on.
func (c *EventConsumer) Handle(ctx context.Context, data []byte) error {
	var e events.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	res, err := c.ingester.Ingest(ctx, &e)
	if err != nil && res.Stored {
		c.logger.Warn("detection failed for stored event", "err", err, "event_id", e.ID)
		return nil
	}
	return err
}

// Subscribe attaches the consumer to subject within queue group.
func (c *EventConsumer) Subscribe(client *Client, subject, queue string) error {
	if _, err := client.QueueSubscribe(subject, queue, c.Handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.logger.Info("consuming events", "subject", subject, "queue", queue)
	return nil
}
