package application

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"gitlab.com/cubelite/api/integration-engine/internal/adapters/metrics"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

const defaultEventListLimit = 50

// EventService is the producer-facing entry point of the engine: Emit is
// the only way events enter the system. It validates, persists to the
// durable event log, and hands the stored event to the downstream
// transport feeding the rule engine.
type EventService struct {
	logger    domain.Logger
	store     domain.EventStore
	publisher domain.EventPublisher
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(logger domain.Logger, store domain.EventStore, publisher domain.EventPublisher) *EventService {
	return &EventService{
		logger:    logger,
		store:     store,
		publisher: publisher,
	}
}

// Emit validates and persists a cross-module event. Once Emit returns
// without error the event is durable; delivery to the rule engine is
// at-least-once. Unknown event types and an empty source module are
// rejected synchronously with a ValidationError, nothing persisted.
func (s *EventService) Emit(ctx context.Context, eventType string, sourceModule string, targetModules []string, payload map[string]any) (*domain.CrossModuleEvent, error) {
	et, err := domain.ParseEventType(eventType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sourceModule) == "" {
		return nil, &domain.ValidationError{Field: "source_module", Reason: "must not be empty"}
	}
	if err := domain.ValidatePayload(et, payload); err != nil {
		return nil, err
	}

	event := &domain.CrossModuleEvent{
		ID:            "evt_" + uuid.NewString(),
		EventType:     et,
		SourceModule:  sourceModule,
		TargetModules: targetModules,
		Payload:       payload,
	}

	stored, err := s.store.Append(ctx, event)
	if err != nil {
		s.logger.Error(ctx, "Failed to append event to store",
			"event_type", eventType, "source_module", sourceModule, "error", err.Error())
		return nil, err
	}
	metrics.IncrementEventsEmitted(string(et), sourceModule)

	// Publish failures are not surfaced to the producer: the event is
	// already durable, and unprocessed events are re-delivered by the next
	// sync cycle for the source module.
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, stored); err != nil {
			s.logger.Warn(ctx, "Failed to publish event downstream; relying on sync replay",
				"event_id", stored.ID, "error", err.Error())
		}
	}

	s.logger.Debug(ctx, "Event emitted",
		"event_id", stored.ID, "event_type", eventType, "source_module", sourceModule, "sequence", stored.Sequence)
	return stored, nil
}

// List returns recent events, newest first. A zero or negative limit falls
// back to the default page size.
func (s *EventService) List(ctx context.Context, filter domain.EventFilter) ([]*domain.CrossModuleEvent, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultEventListLimit
	}
	return s.store.List(ctx, filter)
}
