package application

import (
	"context"
	"errors"
	"testing"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

func newTestEventService() (*EventService, *memEventStore, *memPublisher) {
	store := newMemEventStore()
	publisher := &memPublisher{}
	return NewEventService(nopLogger{}, store, publisher), store, publisher
}

func TestEmitValidation(t *testing.T) {
	svc, store, _ := newTestEventService()
	ctx := context.Background()
	var ve *domain.ValidationError

	if _, err := svc.Emit(ctx, "lead_teleported", "crm", nil, nil); !errors.As(err, &ve) {
		t.Errorf("unknown event type should be a ValidationError, got %v", err)
	}
	if _, err := svc.Emit(ctx, "lead_created", "  ", nil, map[string]any{"email": "a@b.co"}); !errors.As(err, &ve) {
		t.Errorf("blank source module should be a ValidationError, got %v", err)
	}
	if _, err := svc.Emit(ctx, "lead_created", "crm", nil, map[string]any{"name": "no email"}); !errors.As(err, &ve) {
		t.Errorf("lead_created without email should be a ValidationError, got %v", err)
	}
	if _, err := svc.Emit(ctx, "lead_scored", "crm", nil, map[string]any{"email": "a@b.co"}); !errors.As(err, &ve) {
		t.Errorf("lead_scored without score should be a ValidationError, got %v", err)
	}

	if n, _ := store.Count(ctx); n != 0 {
		t.Errorf("rejected emissions must persist nothing, store holds %d", n)
	}
}

func TestEmitAssignsSequenceAndPublishes(t *testing.T) {
	svc, _, publisher := newTestEventService()
	ctx := context.Background()

	first, err := svc.Emit(ctx, "lead_created", "crm", []string{"marketing"}, map[string]any{"email": "a@b.co"})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	second, err := svc.Emit(ctx, "campaign_launched", "marketing", nil, map[string]any{"campaign_id": "c1"})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	if first.ID == "" || first.Sequence == 0 || first.Timestamp.IsZero() {
		t.Errorf("stored event should carry id, sequence and timestamp: %+v", first)
	}
	if second.Sequence <= first.Sequence {
		t.Errorf("sequence must be monotonic: %d then %d", first.Sequence, second.Sequence)
	}
	if first.Processed {
		t.Error("a fresh event starts unprocessed")
	}
	if publisher.count() != 2 {
		t.Errorf("both events should be published downstream, got %d", publisher.count())
	}
}

func TestEmitToleratesPublishFailure(t *testing.T) {
	svc, store, publisher := newTestEventService()
	publisher.err = errors.New("bus unavailable")
	ctx := context.Background()

	event, err := svc.Emit(ctx, "lead_created", "crm", nil, map[string]any{"email": "a@b.co"})
	if err != nil {
		t.Fatalf("a publish failure must not fail the emission: %v", err)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("the event should still be durable, store holds %d", n)
	}
	if event.Processed {
		t.Error("an unpublished event stays unprocessed for sync replay to pick up")
	}
}

func TestEmitAppendFailureSurfaces(t *testing.T) {
	svc, store, _ := newTestEventService()
	store.appendFn = func(*domain.CrossModuleEvent) error {
		return errors.New("log full")
	}
	if _, err := svc.Emit(context.Background(), "lead_created", "crm", nil, map[string]any{"email": "a@b.co"}); err == nil {
		t.Fatal("a store append failure must surface to the producer")
	}
}

func TestEventListDefaultsLimit(t *testing.T) {
	svc, store, _ := newTestEventService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Append(ctx, &domain.CrossModuleEvent{
			ID: "evt", EventType: domain.EventSearchInsight, SourceModule: "search",
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	listed, err := svc.List(ctx, domain.EventFilter{Limit: -1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 3 {
		t.Errorf("expected all 3 events under the default limit, got %d", len(listed))
	}
	if listed[0].Sequence < listed[2].Sequence {
		t.Error("events list newest first")
	}
}
