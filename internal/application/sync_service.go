package application

import (
	"context"
	"fmt"
	"sync"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
	"gitlab.com/cubelite/api/integration-engine/pkg/contextkeys"
)

// syncReplayLimit bounds how far back a cycle scans the event log. The log
// itself is capped, so this only needs to cover the retained window.
const syncReplayLimit = 1000

// SyncService orchestrates per-module sync cycles. A cycle replays the
// module's retained unprocessed events through the rule engine, oldest
// first, so events whose downstream publish was lost still reach their
// actions. Cycles for distinct modules run concurrently; a second trigger
// for a module already syncing coalesces into the in-flight cycle.
type SyncService struct {
	logger  domain.Logger
	tracker *SyncTracker
	events  domain.EventStore
	engine  *RuleEngine
	emitter *EventService
}

func NewSyncService(logger domain.Logger, tracker *SyncTracker, events domain.EventStore, engine *RuleEngine, emitter *EventService) *SyncService {
	return &SyncService{
		logger:  logger,
		tracker: tracker,
		events:  events,
		engine:  engine,
		emitter: emitter,
	}
}

// SyncModules runs one sync cycle for each named module and waits for all
// of them. An empty module list syncs every known module. Unknown module
// names fail the whole request before any cycle starts.
func (s *SyncService) SyncModules(ctx context.Context, modules []string) (map[string]*domain.SyncStatus, error) {
	if len(modules) == 0 {
		modules = domain.KnownModules
	}
	seen := make(map[string]bool, len(modules))
	for _, module := range modules {
		if !domain.KnownModule(module) {
			return nil, fmt.Errorf("%w: %s", domain.ErrModuleUnknown, module)
		}
		seen[module] = true
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		statuses = make(map[string]*domain.SyncStatus, len(seen))
	)
	for module := range seen {
		wg.Add(1)
		go func(module string) {
			defer wg.Done()
			status := s.SyncModule(ctx, module)
			mu.Lock()
			statuses[module] = status
			mu.Unlock()
		}(module)
	}
	wg.Wait()
	return statuses, nil
}

// SyncModule runs one cycle for a single module and returns the resulting
// status. Cycle failures are captured in the status and the module's error
// history rather than returned; the caller always gets the current state.
func (s *SyncService) SyncModule(ctx context.Context, module string) *domain.SyncStatus {
	ctx = context.WithValue(ctx, contextkeys.ModuleKey, module)

	began, current, err := s.tracker.Begin(ctx, module)
	if err != nil {
		s.logger.Error(ctx, "Failed to begin sync cycle", "module", module, "error", err.Error())
		return &domain.SyncStatus{Module: module, Status: domain.SyncError, Errors: []string{err.Error()}}
	}
	if !began {
		// Already syncing; the in-flight cycle covers this request.
		return current
	}

	replayed, err := s.replay(ctx, module)
	if err != nil {
		s.logger.Error(ctx, "Sync cycle failed", "module", module, "replayed", replayed, "error", err.Error())
		status, failErr := s.tracker.Fail(ctx, module, err.Error())
		if failErr != nil {
			s.logger.Error(ctx, "Failed to record sync failure", "module", module, "error", failErr.Error())
			status = &domain.SyncStatus{Module: module, Status: domain.SyncError, Errors: []string{err.Error()}}
		}
		s.emitOutcome(ctx, module, string(domain.EventSyncFailed), map[string]any{
			"module": module,
			"error":  err.Error(),
		})
		return status
	}

	status, err := s.tracker.Complete(ctx, module, 0)
	if err != nil {
		s.logger.Error(ctx, "Failed to complete sync cycle", "module", module, "error", err.Error())
		return &domain.SyncStatus{Module: module, Status: domain.SyncError, Errors: []string{err.Error()}}
	}
	s.emitOutcome(ctx, module, string(domain.EventDataSynced), map[string]any{
		"module":          module,
		"events_replayed": replayed,
		"records_synced":  status.RecordsSynced,
	})
	s.logger.Info(ctx, "Sync cycle completed",
		"module", module, "events_replayed", replayed, "records_synced", status.RecordsSynced)
	return status
}

// replay pushes the module's retained unprocessed events through the rule
// engine, oldest first, and returns how many it replayed.
func (s *SyncService) replay(ctx context.Context, module string) (int, error) {
	events, err := s.events.List(ctx, domain.EventFilter{Limit: syncReplayLimit, SourceModule: module})
	if err != nil {
		return 0, fmt.Errorf("listing events for replay: %w", err)
	}

	replayed := 0
	// The store lists newest first; replay in emission order.
	for i := len(events) - 1; i >= 0; i-- {
		event := events[i]
		if event.Processed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return replayed, err
		}
		if _, err := s.engine.OnEvent(ctx, event); err != nil {
			return replayed, fmt.Errorf("replaying event %s: %w", event.ID, err)
		}
		replayed++
	}
	return replayed, nil
}

// emitOutcome reports a cycle outcome as a regular event so rules can react
// to sync completion and failure. The cycle result does not depend on it.
func (s *SyncService) emitOutcome(ctx context.Context, module, eventType string, payload map[string]any) {
	if s.emitter == nil {
		return
	}
	if _, err := s.emitter.Emit(ctx, eventType, module, nil, payload); err != nil {
		s.logger.Warn(ctx, "Failed to emit sync outcome event",
			"module", module, "event_type", eventType, "error", err.Error())
	}
}
