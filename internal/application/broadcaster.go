package application

import (
	"sync"
	"time"

	"gitlab.com/cubelite/api/integration-engine/internal/adapters/metrics"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// EventNotification is the summary pushed to live feed subscribers after an
// event has been run through the rule engine.
type EventNotification struct {
	EventID       string           `json:"event_id"`
	EventType     domain.EventType `json:"event_type"`
	SourceModule  string           `json:"source_module"`
	RulesMatched  int              `json:"rules_matched"`
	ActionsRun    int              `json:"actions_run"`
	ActionsFailed int              `json:"actions_failed"`
	Timestamp     time.Time        `json:"timestamp"`
}

const subscriberBuffer = 16

// EventBroadcaster fans event notifications out to live subscribers, one
// buffered channel each. A subscriber that stops draining loses
// notifications rather than blocking the engine.
type EventBroadcaster struct {
	logger domain.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]chan EventNotification
}

func NewEventBroadcaster(logger domain.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		logger: logger,
		subs:   make(map[uint64]chan EventNotification),
	}
}

// Subscribe registers a new listener. The returned cancel func must be
// called when the listener goes away; after cancel the channel is closed.
func (b *EventBroadcaster) Subscribe() (<-chan EventNotification, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan EventNotification, subscriberBuffer)
	b.subs[id] = ch
	b.mu.Unlock()

	metrics.IncrementLiveFeedClients()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
			b.mu.Unlock()
			metrics.DecrementLiveFeedClients()
		})
	}
	return ch, cancel
}

// Broadcast delivers a notification to every subscriber without blocking.
func (b *EventBroadcaster) Broadcast(n EventNotification) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
			// Slow consumer; drop rather than stall event processing.
		}
	}
}

// Subscribers reports the current listener count.
func (b *EventBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
