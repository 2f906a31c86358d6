package domain

import (
	"time"
)

// EventType identifies the kind of a cross-module event. Emission with an
// unknown type is rejected synchronously, nothing is persisted.
type EventType string

const (
	EventLeadCreated         EventType = "lead_created"
	EventLeadUpdated         EventType = "lead_updated"
	EventLeadScored          EventType = "lead_scored"
	EventContactMerged       EventType = "contact_merged"
	EventCampaignLaunched    EventType = "campaign_launched"
	EventCampaignCompleted   EventType = "campaign_completed"
	EventSocialPostPublished EventType = "social_post_published"
	EventSocialEngagement    EventType = "social_engagement"
	EventResearchCompleted   EventType = "research_completed"
	EventCompetitorAlert     EventType = "competitor_alert"
	EventSearchInsight       EventType = "search_insight"
	EventWorkflowTriggered   EventType = "workflow_triggered"
	EventDataSynced          EventType = "data_synced"
	EventSyncFailed          EventType = "sync_failed"
)

var knownEventTypes = map[EventType]struct{}{
	EventLeadCreated:         {},
	EventLeadUpdated:         {},
	EventLeadScored:          {},
	EventContactMerged:       {},
	EventCampaignLaunched:    {},
	EventCampaignCompleted:   {},
	EventSocialPostPublished: {},
	EventSocialEngagement:    {},
	EventResearchCompleted:   {},
	EventCompetitorAlert:     {},
	EventSearchInsight:       {},
	EventWorkflowTriggered:   {},
	EventDataSynced:          {},
	EventSyncFailed:          {},
}

// ParseEventType converts a wire-format event type name into an EventType.
// Unknown names are a ValidationError.
func ParseEventType(s string) (EventType, error) {
	et := EventType(s)
	if _, ok := knownEventTypes[et]; !ok {
		return "", &ValidationError{Field: "event_type", Reason: "unknown event type: " + s}
	}
	return et, nil
}

// KnownModules are the module names the engine initializes sync state for.
// Events and rules may reference other module names; only these show up on
// the sync dashboard by default.
var KnownModules = []string{"crm", "marketing", "social", "research", "search", "automation"}

// KnownModule reports whether the name is one of KnownModules.
func KnownModule(name string) bool {
	for _, m := range KnownModules {
		if m == name {
			return true
		}
	}
	return false
}

// requiredPayloadFields lists top-level payload fields that must be present
// for certain event types. Event types without an entry carry an opaque
// payload that is not validated at emit time.
var requiredPayloadFields = map[EventType][]string{
	EventLeadCreated:   {"email"},
	EventLeadScored:    {"email", "score"},
	EventContactMerged: {"primary_id", "secondary_id"},
	EventSyncFailed:    {"module"},
}

// ValidatePayload checks the per-event-type payload schema. A nil payload is
// only acceptable for event types that require no fields.
func ValidatePayload(et EventType, payload map[string]any) error {
	fields, ok := requiredPayloadFields[et]
	if !ok {
		return nil
	}
	for _, f := range fields {
		if payload == nil {
			return &ValidationError{Field: "payload." + f, Reason: "required payload field missing"}
		}
		if v, present := payload[f]; !present || v == nil {
			return &ValidationError{Field: "payload." + f, Reason: "required payload field missing"}
		}
	}
	return nil
}

// CrossModuleEvent is one entry of the durable cross-module event log.
// Events are immutable once appended; Processed transitions false->true
// exactly once, after the rule engine has dispatched all matching rules.
type CrossModuleEvent struct {
	ID            string         `json:"id"`
	Sequence      int64          `json:"sequence"` // store-assigned, monotonic, never reused
	EventType     EventType      `json:"event_type"`
	SourceModule  string         `json:"source_module"`
	TargetModules []string       `json:"target_modules"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	Processed     bool           `json:"processed"`
}

// EventFilter narrows an event log read. A zero Limit falls back to the
// store's default page size.
type EventFilter struct {
	Limit        int
	SourceModule string
}
