package application

import (
	"context"

	"gitlab.com/cubelite/api/integration-engine/internal/adapters/metrics"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// SyncTracker drives the per-module sync state machine and observes
// dispatch outcomes. The state store guarantees at most one syncing state
// per module; a second sync request while one is in flight coalesces into
// the current status, it is not queued.
type SyncTracker struct {
	logger domain.Logger
	store  domain.SyncStateStore
}

// NewSyncTracker constructs a SyncTracker.
func NewSyncTracker(logger domain.Logger, store domain.SyncStateStore) *SyncTracker {
	return &SyncTracker{logger: logger, store: store}
}

// Begin attempts the idle->syncing transition, resetting the cycle counter.
// When the module is already syncing, began is false and current reports
// the in-flight status.
func (t *SyncTracker) Begin(ctx context.Context, module string) (began bool, current *domain.SyncStatus, err error) {
	began, current, err = t.store.BeginCycle(ctx, module)
	if err != nil {
		return false, nil, err
	}
	if !began {
		t.logger.Debug(ctx, "Sync request coalesced into in-flight cycle", "module", module)
	}
	return began, current, nil
}

// Complete transitions syncing -> completed with the cycle total.
func (t *SyncTracker) Complete(ctx context.Context, module string, records int64) (*domain.SyncStatus, error) {
	status, err := t.store.CompleteCycle(ctx, module, records)
	if err != nil {
		return nil, err
	}
	metrics.IncrementSyncCycles(module, "completed")
	t.logger.Info(ctx, "Sync cycle completed", "module", module, "records_synced", records)
	return status, nil
}

// Fail transitions syncing -> error, recording the failure in the module's
// bounded error ring.
func (t *SyncTracker) Fail(ctx context.Context, module string, errMsg string) (*domain.SyncStatus, error) {
	status, err := t.store.FailCycle(ctx, module, errMsg)
	if err != nil {
		return nil, err
	}
	metrics.IncrementSyncCycles(module, "error")
	t.logger.Warn(ctx, "Sync cycle failed", "module", module, "error", errMsg)
	return status, nil
}

// Ack acknowledges a module's error state, returning it to idle.
func (t *SyncTracker) Ack(ctx context.Context, module string) (*domain.SyncStatus, error) {
	return t.store.Ack(ctx, module)
}

// Status returns one module's sync status.
func (t *SyncTracker) Status(ctx context.Context, module string) (*domain.SyncStatus, error) {
	return t.store.Get(ctx, module)
}

// All returns every module's sync status.
func (t *SyncTracker) All(ctx context.Context) (map[string]*domain.SyncStatus, error) {
	return t.store.All(ctx)
}

// RecordDispatched accumulates successfully dispatched records against the
// target module's counters.
func (t *SyncTracker) RecordDispatched(ctx context.Context, module string, n int64) {
	if err := t.store.AddRecords(ctx, module, n); err != nil {
		t.logger.Warn(ctx, "Failed to record dispatched records", "module", module, "error", err.Error())
	}
}

// RecordFailure appends a dispatch failure to the target module's bounded
// error ring without changing its state.
func (t *SyncTracker) RecordFailure(ctx context.Context, module string, dispatchErr error) {
	if module == "" || dispatchErr == nil {
		return
	}
	if err := t.store.AppendError(ctx, module, dispatchErr.Error()); err != nil {
		t.logger.Warn(ctx, "Failed to record dispatch failure", "module", module, "error", err.Error())
	}
}
