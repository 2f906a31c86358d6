package application

import (
	"testing"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

func TestEvaluateCondition(t *testing.T) {
	payload := map[string]any{
		"email": "lead@example.com",
		"score": float64(60),
		"lead": map[string]any{
			"stage": "qualified",
			"score": float64(85),
		},
		"tags":   []any{"inbound", "priority"},
		"amount": "1250.50",
	}

	tests := []struct {
		name string
		cond domain.RuleCondition
		want bool
	}{
		{"eq string match", domain.RuleCondition{Field: "email", Operator: domain.OpEq, Value: "lead@example.com"}, true},
		{"eq string mismatch", domain.RuleCondition{Field: "email", Operator: domain.OpEq, Value: "other@example.com"}, false},
		{"eq numeric coercion", domain.RuleCondition{Field: "score", Operator: domain.OpEq, Value: "60"}, true},
		{"neq", domain.RuleCondition{Field: "email", Operator: domain.OpNeq, Value: "other@example.com"}, true},
		{"neq on missing field is false", domain.RuleCondition{Field: "missing", Operator: domain.OpNeq, Value: "x"}, false},
		{"gt below threshold", domain.RuleCondition{Field: "score", Operator: domain.OpGt, Value: "60"}, false},
		{"gte at threshold", domain.RuleCondition{Field: "score", Operator: domain.OpGte, Value: "60"}, true},
		{"lt", domain.RuleCondition{Field: "score", Operator: domain.OpLt, Value: "100"}, true},
		{"lte at threshold", domain.RuleCondition{Field: "score", Operator: domain.OpLte, Value: "60"}, true},
		{"numeric string payload value", domain.RuleCondition{Field: "amount", Operator: domain.OpGt, Value: "1000"}, true},
		{"gt on non-numeric value", domain.RuleCondition{Field: "email", Operator: domain.OpGt, Value: "10"}, false},
		{"gt with non-numeric condition value", domain.RuleCondition{Field: "score", Operator: domain.OpGt, Value: "high"}, false},
		{"contains substring", domain.RuleCondition{Field: "email", Operator: domain.OpContains, Value: "@example"}, true},
		{"contains list membership", domain.RuleCondition{Field: "tags", Operator: domain.OpContains, Value: "priority"}, true},
		{"contains list miss", domain.RuleCondition{Field: "tags", Operator: domain.OpContains, Value: "outbound"}, false},
		{"exists present", domain.RuleCondition{Field: "email", Operator: domain.OpExists}, true},
		{"exists missing", domain.RuleCondition{Field: "ghost", Operator: domain.OpExists}, false},
		{"nested dot path", domain.RuleCondition{Field: "lead.stage", Operator: domain.OpEq, Value: "qualified"}, true},
		{"nested numeric", domain.RuleCondition{Field: "lead.score", Operator: domain.OpGt, Value: "80"}, true},
		{"dot path through scalar", domain.RuleCondition{Field: "email.domain", Operator: domain.OpExists}, false},
		{"unknown operator fails closed", domain.RuleCondition{Field: "score", Operator: "regex", Value: ".*"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EvaluateCondition(tc.cond, payload); got != tc.want {
				t.Errorf("EvaluateCondition(%+v) = %v, want %v", tc.cond, got, tc.want)
			}
		})
	}
}

func TestEvaluateConditionNilPayload(t *testing.T) {
	cond := domain.RuleCondition{Field: "score", Operator: domain.OpExists}
	if EvaluateCondition(cond, nil) {
		t.Error("exists against a nil payload should be false")
	}
	cond = domain.RuleCondition{Field: "score", Operator: domain.OpEq, Value: "60"}
	if EvaluateCondition(cond, nil) {
		t.Error("eq against a nil payload should be false")
	}
}

func TestRuleMatches(t *testing.T) {
	rule := &domain.IntegrationRule{
		ID:           "rule_1",
		Enabled:      true,
		SourceModule: "crm",
		TriggerEvent: domain.EventLeadScored,
		Conditions: []domain.RuleCondition{
			{Field: "score", Operator: domain.OpGte, Value: "50"},
		},
	}
	event := &domain.CrossModuleEvent{
		EventType:    domain.EventLeadScored,
		SourceModule: "crm",
		Payload:      map[string]any{"score": float64(60)},
	}

	if !RuleMatches(rule, event) {
		t.Fatal("rule should match a score of 60 against gte 50")
	}

	low := *event
	low.Payload = map[string]any{"score": float64(40)}
	if RuleMatches(rule, &low) {
		t.Error("rule should not match a score of 40 against gte 50")
	}

	disabled := *rule
	disabled.Enabled = false
	if RuleMatches(&disabled, event) {
		t.Error("disabled rule should never match")
	}

	otherSource := *event
	otherSource.SourceModule = "marketing"
	if RuleMatches(rule, &otherSource) {
		t.Error("rule should not match an event from another source module")
	}

	otherType := *event
	otherType.EventType = domain.EventLeadCreated
	if RuleMatches(rule, &otherType) {
		t.Error("rule should not match a different event type")
	}
}

func TestRuleMatchesAllConditionsRequired(t *testing.T) {
	rule := &domain.IntegrationRule{
		Enabled:      true,
		SourceModule: "crm",
		TriggerEvent: domain.EventLeadScored,
		Conditions: []domain.RuleCondition{
			{Field: "score", Operator: domain.OpGte, Value: "50"},
			{Field: "stage", Operator: domain.OpEq, Value: "qualified"},
		},
	}
	event := &domain.CrossModuleEvent{
		EventType:    domain.EventLeadScored,
		SourceModule: "crm",
		Payload:      map[string]any{"score": float64(90), "stage": "new"},
	}
	if RuleMatches(rule, event) {
		t.Error("conditions are conjunctive; one false condition must fail the rule")
	}

	event.Payload["stage"] = "qualified"
	if !RuleMatches(rule, event) {
		t.Error("rule should match when every condition holds")
	}
}

func TestRuleMatchesEmptyConditions(t *testing.T) {
	rule := &domain.IntegrationRule{
		Enabled:      true,
		SourceModule: "social",
		TriggerEvent: domain.EventSocialEngagement,
	}
	event := &domain.CrossModuleEvent{
		EventType:    domain.EventSocialEngagement,
		SourceModule: "social",
	}
	if !RuleMatches(rule, event) {
		t.Error("an empty condition list is vacuously true")
	}
}
