package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// nopLogger satisfies domain.Logger for tests without producing output.
type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...any) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...any)  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...any)  {}
func (nopLogger) Error(ctx context.Context, msg string, fields ...any) {}
func (nopLogger) Fatal(ctx context.Context, msg string, fields ...any) {}
func (l nopLogger) With(fields ...any) domain.Logger                   { return l }

// memEventStore implements domain.EventStore in memory. List returns newest
// first, matching the Redis adapter.
type memEventStore struct {
	mu       sync.Mutex
	seq      int64
	events   []*domain.CrossModuleEvent
	appendFn func(event *domain.CrossModuleEvent) error
	markErr  error
}

func newMemEventStore() *memEventStore {
	return &memEventStore{}
}

func (s *memEventStore) Append(ctx context.Context, event *domain.CrossModuleEvent) (*domain.CrossModuleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendFn != nil {
		if err := s.appendFn(event); err != nil {
			return nil, err
		}
	}
	s.seq++
	stored := *event
	stored.Sequence = s.seq
	stored.Timestamp = time.Now().UTC()
	stored.Processed = false
	s.events = append(s.events, &stored)
	return &stored, nil
}

func (s *memEventStore) List(ctx context.Context, filter domain.EventFilter) ([]*domain.CrossModuleEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.CrossModuleEvent
	for i := len(s.events) - 1; i >= 0; i-- {
		e := s.events[i]
		if filter.SourceModule != "" && e.SourceModule != filter.SourceModule {
			continue
		}
		copied := *e
		out = append(out, &copied)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *memEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	for _, e := range s.events {
		if e.ID == eventID {
			e.Processed = true
			return nil
		}
	}
	return domain.ErrEventNotFound
}

func (s *memEventStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.events)), nil
}

func (s *memEventStore) processed(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == eventID {
			return e.Processed
		}
	}
	return false
}

// memRuleStore implements domain.RuleStore in memory.
type memRuleStore struct {
	mu    sync.Mutex
	rules map[string]*domain.IntegrationRule
}

func newMemRuleStore() *memRuleStore {
	return &memRuleStore{rules: make(map[string]*domain.IntegrationRule)}
}

func (s *memRuleStore) Save(ctx context.Context, rule *domain.IntegrationRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rule
	s.rules[rule.ID] = &copied
	return nil
}

func (s *memRuleStore) Get(ctx context.Context, id string) (*domain.IntegrationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	copied := *rule
	return &copied, nil
}

func (s *memRuleStore) List(ctx context.Context) ([]*domain.IntegrationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.IntegrationRule, 0, len(s.rules))
	for _, rule := range s.rules {
		copied := *rule
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memRuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return domain.ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

// memMappingStore implements domain.MappingStore in memory.
type memMappingStore struct {
	mu       sync.Mutex
	mappings map[string]*domain.DataMapping
}

func newMemMappingStore() *memMappingStore {
	return &memMappingStore{mappings: make(map[string]*domain.DataMapping)}
}

func (s *memMappingStore) Save(ctx context.Context, mapping *domain.DataMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *mapping
	s.mappings[mapping.ID] = &copied
	return nil
}

func (s *memMappingStore) Get(ctx context.Context, id string) (*domain.DataMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mapping, ok := s.mappings[id]
	if !ok {
		return nil, domain.ErrMappingNotFound
	}
	copied := *mapping
	return &copied, nil
}

func (s *memMappingStore) List(ctx context.Context) ([]*domain.DataMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.DataMapping, 0, len(s.mappings))
	for _, mapping := range s.mappings {
		copied := *mapping
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memMappingStore) FindBySourceTarget(ctx context.Context, sourceModule, targetModule string) (*domain.DataMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mapping := range s.mappings {
		if mapping.SourceModule == sourceModule && mapping.TargetModule == targetModule {
			copied := *mapping
			return &copied, nil
		}
	}
	return nil, domain.ErrMappingNotFound
}

// memContactStore implements domain.ContactStore in memory, including
// tombstone redirects.
type memContactStore struct {
	mu        sync.Mutex
	contacts  map[string]*domain.UnifiedContact
	redirects map[string]string
}

func newMemContactStore() *memContactStore {
	return &memContactStore{
		contacts:  make(map[string]*domain.UnifiedContact),
		redirects: make(map[string]string),
	}
}

func (s *memContactStore) Get(ctx context.Context, id string) (*domain.UnifiedContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact, ok := s.contacts[id]
	if !ok {
		return nil, domain.ErrContactNotFound
	}
	copied := *contact
	return &copied, nil
}

func (s *memContactStore) FindByEmail(ctx context.Context, email string) (*domain.UnifiedContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, contact := range s.contacts {
		if contact.Email == email {
			copied := *contact
			return &copied, nil
		}
	}
	return nil, domain.ErrContactNotFound
}

func (s *memContactStore) FindByNameCompany(ctx context.Context, name, company string) (*domain.UnifiedContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, contact := range s.contacts {
		if contact.Name == name && contact.Company == company {
			copied := *contact
			return &copied, nil
		}
	}
	return nil, domain.ErrContactNotFound
}

func (s *memContactStore) Save(ctx context.Context, contact *domain.UnifiedContact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *contact
	s.contacts[contact.ID] = &copied
	return nil
}

func (s *memContactStore) List(ctx context.Context, limit int, search string) ([]*domain.UnifiedContact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.UnifiedContact, 0, len(s.contacts))
	for _, contact := range s.contacts {
		copied := *contact
		out = append(out, &copied)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memContactStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.contacts)), nil
}

func (s *memContactStore) Retire(ctx context.Context, secondaryID, primaryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, secondaryID)
	s.redirects[secondaryID] = primaryID
	return nil
}

func (s *memContactStore) ResolveID(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hops := 0; hops < 10; hops++ {
		next, ok := s.redirects[id]
		if !ok {
			return id, nil
		}
		id = next
	}
	return "", fmt.Errorf("redirect chain too deep for %s", id)
}

// memLockManager implements domain.ContactLockManager in memory.
type memLockManager struct {
	mu    sync.Mutex
	locks map[string]string

	acquireAttempts int
	denyFirst       int
}

func newMemLockManager() *memLockManager {
	return &memLockManager{locks: make(map[string]string)}
}

func (m *memLockManager) AcquireLock(ctx context.Context, key string, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acquireAttempts++
	if m.denyFirst > 0 {
		m.denyFirst--
		return false, nil
	}
	if holder, held := m.locks[key]; held && holder != owner {
		return false, nil
	}
	m.locks[key] = owner
	return true, nil
}

func (m *memLockManager) ReleaseLock(ctx context.Context, key string, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] != owner {
		return false, nil
	}
	delete(m.locks, key)
	return true, nil
}

// memSyncStateStore implements domain.SyncStateStore in memory with the same
// state machine semantics as the Redis adapter.
type memSyncStateStore struct {
	mu       sync.Mutex
	statuses map[string]*domain.SyncStatus
}

func newMemSyncStateStore() *memSyncStateStore {
	return &memSyncStateStore{statuses: make(map[string]*domain.SyncStatus)}
}

func (s *memSyncStateStore) status(module string) *domain.SyncStatus {
	st, ok := s.statuses[module]
	if !ok {
		st = domain.NewSyncStatus(module)
		s.statuses[module] = st
	}
	return st
}

func (s *memSyncStateStore) Get(ctx context.Context, module string) (*domain.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *s.status(module)
	copied.Errors = append([]string{}, copied.Errors...)
	return &copied, nil
}

func (s *memSyncStateStore) All(ctx context.Context) (map[string]*domain.SyncStatus, error) {
	out := make(map[string]*domain.SyncStatus, len(domain.KnownModules))
	for _, module := range domain.KnownModules {
		st, err := s.Get(ctx, module)
		if err != nil {
			return nil, err
		}
		out[module] = st
	}
	return out, nil
}

func (s *memSyncStateStore) BeginCycle(ctx context.Context, module string) (bool, *domain.SyncStatus, error) {
	s.mu.Lock()
	st := s.status(module)
	if st.Status == domain.SyncSyncing {
		s.mu.Unlock()
		current, err := s.Get(ctx, module)
		return false, current, err
	}
	st.Status = domain.SyncSyncing
	st.RecordsSynced = 0
	s.mu.Unlock()
	current, err := s.Get(ctx, module)
	return true, current, err
}

func (s *memSyncStateStore) CompleteCycle(ctx context.Context, module string, records int64) (*domain.SyncStatus, error) {
	s.mu.Lock()
	st := s.status(module)
	st.Status = domain.SyncCompleted
	st.RecordsSynced += records
	now := time.Now().UTC()
	st.LastSync = &now
	s.mu.Unlock()
	return s.Get(ctx, module)
}

func (s *memSyncStateStore) FailCycle(ctx context.Context, module string, errMsg string) (*domain.SyncStatus, error) {
	s.mu.Lock()
	st := s.status(module)
	st.Status = domain.SyncError
	st.Errors = append([]string{errMsg}, st.Errors...)
	if len(st.Errors) > domain.SyncErrorHistoryLimit {
		st.Errors = st.Errors[:domain.SyncErrorHistoryLimit]
	}
	s.mu.Unlock()
	return s.Get(ctx, module)
}

func (s *memSyncStateStore) AppendError(ctx context.Context, module string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status(module)
	st.Errors = append([]string{errMsg}, st.Errors...)
	if len(st.Errors) > domain.SyncErrorHistoryLimit {
		st.Errors = st.Errors[:domain.SyncErrorHistoryLimit]
	}
	return nil
}

func (s *memSyncStateStore) AddRecords(ctx context.Context, module string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.status(module).RecordsSynced += n
	}
	return nil
}

func (s *memSyncStateStore) Ack(ctx context.Context, module string) (*domain.SyncStatus, error) {
	s.mu.Lock()
	st := s.status(module)
	if st.Status == domain.SyncError {
		st.Status = domain.SyncIdle
	}
	s.mu.Unlock()
	return s.Get(ctx, module)
}

// memPublisher implements domain.EventPublisher in memory.
type memPublisher struct {
	mu        sync.Mutex
	published []*domain.CrossModuleEvent
	err       error
}

func (p *memPublisher) Publish(ctx context.Context, event *domain.CrossModuleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// recordedDispatch captures one call through the stub dispatcher.
type recordedDispatch struct {
	Module     string
	ActionType string
	Record     map[string]any
}

// stubDispatcher implements domain.ActionDispatcher, failing dispatches to
// modules listed in failModules.
type stubDispatcher struct {
	mu          sync.Mutex
	calls       []recordedDispatch
	failModules map[string]error
}

func newStubDispatcher() *stubDispatcher {
	return &stubDispatcher{failModules: make(map[string]error)}
}

func (d *stubDispatcher) Dispatch(ctx context.Context, targetModule, actionType string, parameters map[string]string, record map[string]any) (*domain.DispatchAck, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, recordedDispatch{Module: targetModule, ActionType: actionType, Record: record})
	if err, ok := d.failModules[targetModule]; ok {
		return nil, err
	}
	return &domain.DispatchAck{Module: targetModule}, nil
}

func (d *stubDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

func (d *stubDispatcher) lastCall() recordedDispatch {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[len(d.calls)-1]
}

// newTestEngine assembles a RuleEngine over fresh in-memory stores.
func newTestEngine() (*RuleEngine, *memRuleStore, *memEventStore, *memMappingStore, *memContactStore, *stubDispatcher, *memSyncStateStore) {
	log := nopLogger{}
	rules := newMemRuleStore()
	events := newMemEventStore()
	mappings := newMemMappingStore()
	contacts := newMemContactStore()
	dispatcher := newStubDispatcher()
	syncStore := newMemSyncStateStore()

	mapper := NewMappingService(log, mappings)
	contactSvc := NewContactService(log, contacts, newMemLockManager(), time.Second)
	tracker := NewSyncTracker(log, syncStore)
	broadcaster := NewEventBroadcaster(log)

	engine := NewRuleEngine(log, rules, events, mappings, mapper, contactSvc, dispatcher, tracker, broadcaster)
	return engine, rules, events, mappings, contacts, dispatcher, syncStore
}
