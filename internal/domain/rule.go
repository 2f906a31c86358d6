package domain

import (
	"time"
)

// ConditionOperator is the comparison applied by one RuleCondition.
type ConditionOperator string

const (
	OpEq       ConditionOperator = "eq"
	OpNeq      ConditionOperator = "neq"
	OpGt       ConditionOperator = "gt"
	OpLt       ConditionOperator = "lt"
	OpGte      ConditionOperator = "gte"
	OpLte      ConditionOperator = "lte"
	OpContains ConditionOperator = "contains"
	OpExists   ConditionOperator = "exists"
)

var knownOperators = map[ConditionOperator]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpLt: {}, OpGte: {}, OpLte: {},
	OpContains: {}, OpExists: {},
}

// ValidOperator reports whether op is one of the supported condition
// operators. Registration of a rule with an unknown operator is a
// ConfigurationError; this is never silently ignored at runtime.
func ValidOperator(op ConditionOperator) bool {
	_, ok := knownOperators[op]
	return ok
}

// RuleCondition is a single predicate over the event payload. Field uses
// dot-path notation for nested lookups (e.g. "lead.score").
type RuleCondition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
}

// RuleAction is a declarative instruction executed when a rule matches.
// The engine interprets ActionUpsertContact itself; everything else is
// handed to the host-supplied dispatcher for TargetModule.
type RuleAction struct {
	ActionType   string            `json:"action_type"`
	TargetModule string            `json:"target_module"`
	Parameters   map[string]string `json:"parameters"`
}

// ActionUpsertContact routes the event payload into the unified contact
// service instead of an external module handler.
const ActionUpsertContact = "upsert_contact"

// IntegrationRule is a pure configuration object: it carries no runtime
// state beyond Enabled. A rule matches an event when Enabled is true, the
// event's source module and type equal SourceModule/TriggerEvent, and all
// Conditions evaluate true (an empty condition list is vacuously true).
type IntegrationRule struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	SourceModule string          `json:"source_module"`
	TargetModule string          `json:"target_module"`
	TriggerEvent EventType       `json:"trigger_event"`
	Conditions   []RuleCondition `json:"conditions"`
	Actions      []RuleAction    `json:"actions"`
	Enabled      bool            `json:"enabled"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RulePatch is a partial update to an IntegrationRule. Nil fields are left
// untouched.
type RulePatch struct {
	Name       *string          `json:"name,omitempty"`
	Enabled    *bool            `json:"enabled,omitempty"`
	Conditions *[]RuleCondition `json:"conditions,omitempty"`
	Actions    *[]RuleAction    `json:"actions,omitempty"`
}

// ActionResult records the outcome of one executed action for a processed
// event. Failures are recorded here and on the target module's sync status;
// they are never propagated up through the event loop.
type ActionResult struct {
	RuleID       string        `json:"rule_id"`
	RuleName     string        `json:"rule_name"`
	ActionType   string        `json:"action_type"`
	TargetModule string        `json:"target_module"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
}

// OK reports whether the action completed without a recorded failure.
func (r ActionResult) OK() bool { return r.Error == "" }
