package domain

import (
	"context"
	"time"
)

// EventStore is the durable append log of cross-module events. Append must
// serialize assignment of sequence numbers and timestamps (monotonic, never
// reused); persistence itself may proceed concurrently.
type EventStore interface {
	// Append persists the event, assigning its sequence number and
	// timestamp, and returns the stored copy. Once Append returns the
	// event is durable.
	Append(ctx context.Context, event *CrossModuleEvent) (*CrossModuleEvent, error)

	// List returns events newest first. It is a pure read: no cursor state
	// is retained between calls.
	List(ctx context.Context, filter EventFilter) ([]*CrossModuleEvent, error)

	// MarkProcessed flips the processed flag, false->true exactly once.
	MarkProcessed(ctx context.Context, eventID string) error

	// Count returns the number of retained events.
	Count(ctx context.Context) (int64, error)
}

// EventPublisher hands a freshly persisted event to the downstream
// transport feeding the rule engine (at-least-once).
type EventPublisher interface {
	Publish(ctx context.Context, event *CrossModuleEvent) error
}

// RuleStore persists integration rules.
type RuleStore interface {
	Save(ctx context.Context, rule *IntegrationRule) error
	Get(ctx context.Context, id string) (*IntegrationRule, error)
	List(ctx context.Context) ([]*IntegrationRule, error)
	Delete(ctx context.Context, id string) error
}

// MappingStore persists data mappings.
type MappingStore interface {
	Save(ctx context.Context, mapping *DataMapping) error
	Get(ctx context.Context, id string) (*DataMapping, error)
	List(ctx context.Context) ([]*DataMapping, error)

	// FindBySourceTarget returns the mapping for a module pair, or
	// ErrMappingNotFound when none is registered.
	FindBySourceTarget(ctx context.Context, sourceModule, targetModule string) (*DataMapping, error)
}

// ContactStore persists unified contacts, their lookup indexes, and the
// tombstone redirects left behind by merges.
type ContactStore interface {
	Get(ctx context.Context, id string) (*UnifiedContact, error)
	FindByEmail(ctx context.Context, email string) (*UnifiedContact, error)
	FindByNameCompany(ctx context.Context, name, company string) (*UnifiedContact, error)
	Save(ctx context.Context, contact *UnifiedContact) error
	List(ctx context.Context, limit int, search string) ([]*UnifiedContact, error)
	Count(ctx context.Context) (int64, error)

	// Retire replaces secondaryID with a redirect to primaryID. The record
	// is retired, not deleted: in-flight references to the old id must
	// keep resolving.
	Retire(ctx context.Context, secondaryID, primaryID string) error

	// ResolveID follows redirects to the current canonical contact id.
	ResolveID(ctx context.Context, id string) (string, error)
}

// ContactLockManager serializes writers per contact so concurrent rule
// actions cannot race the merge policy into a lost update.
type ContactLockManager interface {
	// AcquireLock attempts to acquire a lock for the given key with a
	// specific owner value and TTL. Returns true if acquired.
	AcquireLock(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock releases the lock only when the owner matches, to avoid
	// releasing a lock acquired by another instance.
	ReleaseLock(ctx context.Context, key string, owner string) (bool, error)
}

// SyncStateStore persists the per-module sync state machine.
type SyncStateStore interface {
	Get(ctx context.Context, module string) (*SyncStatus, error)
	All(ctx context.Context) (map[string]*SyncStatus, error)

	// BeginCycle atomically transitions a module into syncing and resets
	// its cycle counter. When the module is already syncing, began is
	// false and current reports the in-flight status (coalescing, not
	// queuing).
	BeginCycle(ctx context.Context, module string) (began bool, current *SyncStatus, err error)

	// CompleteCycle transitions syncing -> completed, recording the cycle
	// total and last sync time.
	CompleteCycle(ctx context.Context, module string, records int64) (*SyncStatus, error)

	// FailCycle transitions syncing -> error and appends the message to
	// the module's bounded error ring.
	FailCycle(ctx context.Context, module string, errMsg string) (*SyncStatus, error)

	// AppendError records a dispatch failure against the module without
	// changing its state.
	AppendError(ctx context.Context, module string, errMsg string) error

	// AddRecords accumulates records synced within the current cycle.
	AddRecords(ctx context.Context, module string, n int64) error

	// Ack acknowledges an error state, returning the module to idle.
	Ack(ctx context.Context, module string) (*SyncStatus, error)
}

// DispatchAck is the acknowledgement returned by a module handler.
type DispatchAck struct {
	Module string `json:"module"`
	Detail string `json:"detail,omitempty"`
}

// ModuleHandler fulfils dispatched actions for one module. Implementations
// are supplied by the host; the engine has no knowledge of how a module
// fulfils the dispatch.
type ModuleHandler interface {
	Handle(ctx context.Context, actionType string, parameters map[string]string, record map[string]any) (*DispatchAck, error)
}

// ModuleHandlerFunc adapts a function to the ModuleHandler interface.
type ModuleHandlerFunc func(ctx context.Context, actionType string, parameters map[string]string, record map[string]any) (*DispatchAck, error)

func (f ModuleHandlerFunc) Handle(ctx context.Context, actionType string, parameters map[string]string, record map[string]any) (*DispatchAck, error) {
	return f(ctx, actionType, parameters, record)
}

// ActionDispatcher is the engine's only path to externally visible side
// effects. Every dispatch is wrapped with a bounded timeout; a timeout is a
// per-action DispatchError and is not retried automatically.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, targetModule, actionType string, parameters map[string]string, record map[string]any) (*DispatchAck, error)
}
