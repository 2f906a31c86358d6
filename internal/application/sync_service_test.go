package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

type syncHarness struct {
	svc        *SyncService
	tracker    *SyncTracker
	events     *memEventStore
	syncStore  *memSyncStateStore
	dispatcher *stubDispatcher
	rules      *memRuleStore
	publisher  *memPublisher
}

func newSyncHarness() *syncHarness {
	log := nopLogger{}
	rules := newMemRuleStore()
	events := newMemEventStore()
	mappings := newMemMappingStore()
	dispatcher := newStubDispatcher()
	syncStore := newMemSyncStateStore()
	publisher := &memPublisher{}

	tracker := NewSyncTracker(log, syncStore)
	engine := NewRuleEngine(log, rules, events, mappings,
		NewMappingService(log, mappings),
		NewContactService(log, newMemContactStore(), newMemLockManager(), time.Second),
		dispatcher, tracker, NewEventBroadcaster(log))
	emitter := NewEventService(log, events, publisher)

	return &syncHarness{
		svc:        NewSyncService(log, tracker, events, engine, emitter),
		tracker:    tracker,
		events:     events,
		syncStore:  syncStore,
		dispatcher: dispatcher,
		rules:      rules,
		publisher:  publisher,
	}
}

func TestSyncStateMachine(t *testing.T) {
	h := newSyncHarness()
	ctx := context.Background()

	status, err := h.tracker.Status(ctx, "crm")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Status != domain.SyncIdle {
		t.Errorf("initial state = %s, want idle", status.Status)
	}

	began, _, err := h.tracker.Begin(ctx, "crm")
	if err != nil || !began {
		t.Fatalf("Begin = (%v, %v), want began", began, err)
	}

	// A second begin while syncing coalesces.
	began, current, err := h.tracker.Begin(ctx, "crm")
	if err != nil {
		t.Fatalf("second Begin failed: %v", err)
	}
	if began {
		t.Error("a module already syncing must not begin a second cycle")
	}
	if current.Status != domain.SyncSyncing {
		t.Errorf("coalesced status = %s, want syncing", current.Status)
	}

	status, err = h.tracker.Complete(ctx, "crm", 7)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if status.Status != domain.SyncCompleted || status.RecordsSynced != 7 {
		t.Errorf("completed status = %+v", status)
	}
	if status.LastSync == nil {
		t.Error("completion should record last_sync")
	}

	// A completed module can begin a fresh cycle; the counter resets.
	began, current, err = h.tracker.Begin(ctx, "crm")
	if err != nil || !began {
		t.Fatalf("Begin after completion = (%v, %v)", began, err)
	}
	if current.RecordsSynced != 0 {
		t.Errorf("new cycle should reset records_synced, got %d", current.RecordsSynced)
	}

	status, err = h.tracker.Fail(ctx, "crm", "replay blew up")
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if status.Status != domain.SyncError || len(status.Errors) != 1 {
		t.Errorf("failed status = %+v", status)
	}

	status, err = h.tracker.Ack(ctx, "crm")
	if err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if status.Status != domain.SyncIdle {
		t.Errorf("ack should return the module to idle, got %s", status.Status)
	}
	if len(status.Errors) != 1 {
		t.Error("ack clears the error state, not the error history")
	}
}

func TestSyncErrorHistoryIsBounded(t *testing.T) {
	h := newSyncHarness()
	ctx := context.Background()

	for i := 0; i < domain.SyncErrorHistoryLimit+5; i++ {
		if err := h.syncStore.AppendError(ctx, "marketing", fmt.Sprintf("failure %d", i)); err != nil {
			t.Fatalf("AppendError failed: %v", err)
		}
	}
	status, err := h.tracker.Status(ctx, "marketing")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status.Errors) != domain.SyncErrorHistoryLimit {
		t.Errorf("error history length = %d, want %d", len(status.Errors), domain.SyncErrorHistoryLimit)
	}
	if status.Errors[0] != fmt.Sprintf("failure %d", domain.SyncErrorHistoryLimit+4) {
		t.Errorf("newest error should be first, got %s", status.Errors[0])
	}
}

func TestSyncModuleReplaysUnprocessedEvents(t *testing.T) {
	h := newSyncHarness()
	ctx := context.Background()

	if err := h.rules.Save(ctx, &domain.IntegrationRule{
		ID: "rule_r", Name: "replayable", Enabled: true,
		SourceModule: "crm", TargetModule: "marketing",
		TriggerEvent: domain.EventLeadCreated,
		CreatedAt:    time.Now().UTC(),
		Actions:      []domain.RuleAction{{ActionType: "enroll"}},
	}); err != nil {
		t.Fatalf("Save rule failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := h.events.Append(ctx, &domain.CrossModuleEvent{
			ID: fmt.Sprintf("evt_%d", i), EventType: domain.EventLeadCreated,
			SourceModule: "crm", Payload: map[string]any{"email": fmt.Sprintf("l%d@x.co", i)},
		}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	// One already processed; replay must skip it.
	if err := h.events.MarkProcessed(ctx, "evt_1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	// Event from another module; replay must not touch it.
	if _, err := h.events.Append(ctx, &domain.CrossModuleEvent{
		ID: "evt_other", EventType: domain.EventSocialEngagement, SourceModule: "social",
	}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	status := h.svc.SyncModule(ctx, "crm")
	if status.Status != domain.SyncCompleted {
		t.Fatalf("cycle status = %s (%v), want completed", status.Status, status.Errors)
	}
	if h.dispatcher.callCount() != 2 {
		t.Errorf("replay should dispatch the 2 unprocessed crm events, got %d", h.dispatcher.callCount())
	}
	if !h.events.processed("evt_0") || !h.events.processed("evt_2") {
		t.Error("replayed events should end up processed")
	}
	if h.events.processed("evt_other") {
		t.Error("events from other modules are out of scope for this cycle")
	}
	// Dispatch successes accumulate on the target module's counters.
	if status.RecordsSynced != 0 {
		t.Errorf("source module counter stays zero, got %d", status.RecordsSynced)
	}
	target, err := h.tracker.Status(ctx, "marketing")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if target.RecordsSynced != 2 {
		t.Errorf("target module records_synced = %d, want 2", target.RecordsSynced)
	}
}

func TestSyncModuleEmitsOutcomeEvent(t *testing.T) {
	h := newSyncHarness()
	ctx := context.Background()

	status := h.svc.SyncModule(ctx, "research")
	if status.Status != domain.SyncCompleted {
		t.Fatalf("cycle status = %s, want completed", status.Status)
	}

	listed, err := h.events.List(ctx, domain.EventFilter{Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(listed) != 1 || listed[0].EventType != domain.EventDataSynced {
		t.Fatalf("expected a data_synced outcome event, got %+v", listed)
	}
	if listed[0].Payload["module"] != "research" {
		t.Errorf("outcome payload module = %v", listed[0].Payload["module"])
	}
}

func TestSyncModulesValidatesAndFansOut(t *testing.T) {
	h := newSyncHarness()
	ctx := context.Background()

	if _, err := h.svc.SyncModules(ctx, []string{"crm", "warehouse"}); !errors.Is(err, domain.ErrModuleUnknown) {
		t.Fatalf("unknown module should fail the whole request, got %v", err)
	}

	statuses, err := h.svc.SyncModules(ctx, []string{"crm", "social", "crm"})
	if err != nil {
		t.Fatalf("SyncModules failed: %v", err)
	}
	if len(statuses) != 2 {
		t.Errorf("duplicate modules should coalesce, got %d statuses", len(statuses))
	}
	for module, status := range statuses {
		if status.Status != domain.SyncCompleted {
			t.Errorf("%s status = %s, want completed", module, status.Status)
		}
	}

	all, err := h.svc.SyncModules(ctx, nil)
	if err != nil {
		t.Fatalf("SyncModules(nil) failed: %v", err)
	}
	if len(all) != len(domain.KnownModules) {
		t.Errorf("an empty list syncs every known module, got %d", len(all))
	}
}
