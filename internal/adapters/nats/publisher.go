package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// PublisherAdapter implements domain.EventPublisher on JetStream. The event
// id doubles as the message id, so JetStream deduplicates redundant
// publishes of the same event within the dedup window.
type PublisherAdapter struct {
	consumer *ConsumerAdapter
	logger   domain.Logger
}

// NewPublisherAdapter creates a PublisherAdapter sharing the consumer's
// NATS connection.
func NewPublisherAdapter(consumer *ConsumerAdapter, logger domain.Logger) *PublisherAdapter {
	return &PublisherAdapter{
		consumer: consumer,
		logger:   logger,
	}
}

// Publish sends a persisted event to its subject. A failure here is
// recoverable; unprocessed events are re-delivered by sync replay.
func (a *PublisherAdapter) Publish(ctx context.Context, event *domain.CrossModuleEvent) error {
	js := a.consumer.JetStreamContext()
	if js == nil {
		return fmt.Errorf("JetStream context is not initialized")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event %s for publish: %w", event.ID, err)
	}

	subject := EventSubject(event.SourceModule, event.EventType)
	if _, err := js.Publish(subject, data, nats.MsgId(event.ID), nats.Context(ctx)); err != nil {
		return fmt.Errorf("publishing event %s to %s: %w", event.ID, subject, err)
	}

	a.logger.Debug(ctx, "Event published", "event_id", event.ID, "subject", subject)
	return nil
}
