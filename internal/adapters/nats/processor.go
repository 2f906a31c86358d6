package nats

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"gitlab.com/cubelite/api/integration-engine/internal/application"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
	"gitlab.com/cubelite/api/integration-engine/pkg/safego"
)

// EventProcessor bridges the JetStream subscription to the rule engine.
// Delivery is at-least-once: a redelivered event runs through the engine
// again, which is safe because the processed flag only flips once and
// contact writes are merge-idempotent under the per-contact lock.
type EventProcessor struct {
	consumer *ConsumerAdapter
	engine   *application.RuleEngine
	logger   domain.Logger

	sub *nats.Subscription
}

// NewEventProcessor creates an EventProcessor. Start must be called to
// begin consuming.
func NewEventProcessor(consumer *ConsumerAdapter, engine *application.RuleEngine, logger domain.Logger) *EventProcessor {
	return &EventProcessor{
		consumer: consumer,
		engine:   engine,
		logger:   logger,
	}
}

// Start subscribes to the event stream. The subscription is unsubscribed
// when the application context is cancelled.
func (p *EventProcessor) Start(appCtx context.Context) error {
	sub, err := p.consumer.SubscribeToEvents(appCtx, func(msg *nats.Msg) {
		safego.Execute(appCtx, p.logger, "EventProcessorHandleMsg", func() {
			p.handle(appCtx, msg)
		})
	})
	if err != nil {
		return err
	}
	p.sub = sub

	safego.Execute(appCtx, p.logger, "EventProcessorShutdownWatcher", func() {
		<-appCtx.Done()
		p.Stop()
	})
	return nil
}

// Stop unsubscribes from the event stream.
func (p *EventProcessor) Stop() {
	if p.sub != nil && p.sub.IsValid() {
		if err := p.sub.Unsubscribe(); err != nil {
			p.logger.Warn(context.Background(), "Failed to unsubscribe event processor", "error", err.Error())
		}
	}
}

func (p *EventProcessor) handle(ctx context.Context, msg *nats.Msg) {
	event := &domain.CrossModuleEvent{}
	if err := json.Unmarshal(msg.Data, event); err != nil {
		// A poison message can never be processed; ack it away and log.
		p.logger.Error(ctx, "Failed to unmarshal event message, dropping",
			"subject", msg.Subject, "error", err.Error())
		if ackErr := msg.Ack(); ackErr != nil {
			p.logger.Warn(ctx, "Failed to ack poison message", "error", ackErr.Error())
		}
		return
	}

	if _, err := p.engine.OnEvent(ctx, event); err != nil {
		p.logger.Error(ctx, "Event processing failed, requesting redelivery",
			"event_id", event.ID, "error", err.Error())
		if nakErr := msg.Nak(); nakErr != nil {
			p.logger.Warn(ctx, "Failed to nak message", "event_id", event.ID, "error", nakErr.Error())
		}
		return
	}

	if err := msg.Ack(); err != nil {
		p.logger.Warn(ctx, "Failed to ack processed event", "event_id", event.ID, "error", err.Error())
	}
}
