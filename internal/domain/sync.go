package domain

import (
	"time"
)

// SyncState is one module's position in the sync lifecycle:
// idle -> syncing -> {completed|error} -> idle. Transitions are re-entrant
// per cycle; only one syncing state may be active per module at a time.
type SyncState string

const (
	SyncIdle      SyncState = "idle"
	SyncSyncing   SyncState = "syncing"
	SyncCompleted SyncState = "completed"
	SyncError     SyncState = "error"
)

// SyncErrorHistoryLimit bounds the per-module error ring. Older entries are
// dropped, not replaced wholesale, to keep post-mortem history.
const SyncErrorHistoryLimit = 20

// SyncStatus tracks one module's sync state machine and counters.
// RecordsSynced accumulates within a cycle and resets to zero when a new
// syncing transition begins.
type SyncStatus struct {
	Module        string     `json:"module"`
	LastSync      *time.Time `json:"last_sync,omitempty"`
	RecordsSynced int64      `json:"records_synced"`
	Status        SyncState  `json:"status"`
	Errors        []string   `json:"errors"`
}

// NewSyncStatus returns the initial idle status for a module.
func NewSyncStatus(module string) *SyncStatus {
	return &SyncStatus{Module: module, Status: SyncIdle, Errors: []string{}}
}
