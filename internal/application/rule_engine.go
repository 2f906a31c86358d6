package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"gitlab.com/cubelite/api/integration-engine/internal/adapters/metrics"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
	"gitlab.com/cubelite/api/integration-engine/pkg/contextkeys"
)

// RuleEngine matches incoming events against registered integration rules
// and executes their actions. Rule evaluation for a single event is
// sequential and deterministic; per-action failures are recorded, never
// propagated, so one bad action cannot prevent other rules or other events
// from being processed.
type RuleEngine struct {
	logger      domain.Logger
	rules       domain.RuleStore
	events      domain.EventStore
	mappings    domain.MappingStore
	mapper      *MappingService
	contacts    *ContactService
	dispatcher  domain.ActionDispatcher
	tracker     *SyncTracker
	broadcaster *EventBroadcaster
}

// NewRuleEngine constructs a RuleEngine with its collaborators. The
// broadcaster may be nil when no live feed is wired.
func NewRuleEngine(
	logger domain.Logger,
	rules domain.RuleStore,
	events domain.EventStore,
	mappings domain.MappingStore,
	mapper *MappingService,
	contacts *ContactService,
	dispatcher domain.ActionDispatcher,
	tracker *SyncTracker,
	broadcaster *EventBroadcaster,
) *RuleEngine {
	return &RuleEngine{
		logger:      logger,
		rules:       rules,
		events:      events,
		mappings:    mappings,
		mapper:      mapper,
		contacts:    contacts,
		dispatcher:  dispatcher,
		tracker:     tracker,
		broadcaster: broadcaster,
	}
}

// Register validates and persists a new rule. Unknown trigger events are a
// ValidationError; unknown condition operators are a ConfigurationError.
// The rule comes back with an assigned id, enabled, and a creation
// timestamp that fixes its place in the deterministic execution order.
func (e *RuleEngine) Register(ctx context.Context, rule *domain.IntegrationRule) (*domain.IntegrationRule, error) {
	if strings.TrimSpace(rule.Name) == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(rule.SourceModule) == "" {
		return nil, &domain.ValidationError{Field: "source_module", Reason: "must not be empty"}
	}
	if _, err := domain.ParseEventType(string(rule.TriggerEvent)); err != nil {
		return nil, &domain.ValidationError{Field: "trigger_event", Reason: "unknown event type: " + string(rule.TriggerEvent)}
	}
	for _, cond := range rule.Conditions {
		if !domain.ValidOperator(cond.Operator) {
			return nil, &domain.ConfigurationError{Kind: "operator", Value: string(cond.Operator)}
		}
		if cond.Field == "" {
			return nil, &domain.ValidationError{Field: "conditions", Reason: "condition field must not be empty"}
		}
	}
	for _, action := range rule.Actions {
		if action.ActionType == "" {
			return nil, &domain.ValidationError{Field: "actions", Reason: "action_type must not be empty"}
		}
	}

	rule.ID = "rule_" + uuid.NewString()
	rule.Enabled = true
	rule.CreatedAt = time.Now().UTC()
	if err := e.rules.Save(ctx, rule); err != nil {
		return nil, err
	}
	e.logger.Info(ctx, "Integration rule registered",
		"rule_id", rule.ID, "name", rule.Name,
		"source_module", rule.SourceModule, "trigger_event", string(rule.TriggerEvent))
	return rule, nil
}

// Update applies a partial patch to an existing rule. Patched conditions
// are re-validated the same way as at registration.
func (e *RuleEngine) Update(ctx context.Context, id string, patch domain.RulePatch) (*domain.IntegrationRule, error) {
	rule, err := e.rules.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Enabled != nil {
		rule.Enabled = *patch.Enabled
	}
	if patch.Conditions != nil {
		for _, cond := range *patch.Conditions {
			if !domain.ValidOperator(cond.Operator) {
				return nil, &domain.ConfigurationError{Kind: "operator", Value: string(cond.Operator)}
			}
		}
		rule.Conditions = *patch.Conditions
	}
	if patch.Actions != nil {
		rule.Actions = *patch.Actions
	}
	if err := e.rules.Save(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

// Delete removes a rule.
func (e *RuleEngine) Delete(ctx context.Context, id string) error {
	return e.rules.Delete(ctx, id)
}

// Get returns one rule by id.
func (e *RuleEngine) Get(ctx context.Context, id string) (*domain.IntegrationRule, error) {
	return e.rules.Get(ctx, id)
}

// List returns all rules, ordered by creation time.
func (e *RuleEngine) List(ctx context.Context) ([]*domain.IntegrationRule, error) {
	rules, err := e.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	sortRules(rules)
	return rules, nil
}

// OnEvent is the dispatch entry point, called once per emitted event.
// Matching rules run in created_at ascending order, each rule's actions in
// declaration order. After every matching rule has been processed, with
// failures recorded per action, the event is marked processed exactly once.
func (e *RuleEngine) OnEvent(ctx context.Context, event *domain.CrossModuleEvent) ([]domain.ActionResult, error) {
	ctx = context.WithValue(ctx, contextkeys.EventIDKey, event.ID)

	rules, err := e.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	sortRules(rules)

	var results []domain.ActionResult
	matched := 0
	for _, rule := range rules {
		if !RuleMatches(rule, event) {
			continue
		}
		matched++
		metrics.IncrementRulesMatched(event.SourceModule)
		ruleCtx := context.WithValue(ctx, contextkeys.RuleIDKey, rule.ID)
		for _, action := range rule.Actions {
			results = append(results, e.executeAction(ruleCtx, rule, action, event))
		}
	}

	if !event.Processed {
		if err := e.events.MarkProcessed(ctx, event.ID); err != nil {
			// The actions already ran; surface the store failure so the
			// transport can redeliver and the processed flag converges.
			e.logger.Error(ctx, "Failed to mark event processed", "event_id", event.ID, "error", err.Error())
			return results, err
		}
		event.Processed = true
	}
	metrics.IncrementEventsProcessed(string(event.EventType))

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(EventNotification{
			EventID:       event.ID,
			EventType:     event.EventType,
			SourceModule:  event.SourceModule,
			RulesMatched:  matched,
			ActionsRun:    len(results),
			ActionsFailed: failed,
			Timestamp:     time.Now().UTC(),
		})
	}

	e.logger.Debug(ctx, "Event processed",
		"event_id", event.ID, "rules_matched", matched,
		"actions_run", len(results), "actions_failed", failed)
	return results, nil
}

// executeAction runs one action. The record handed to the dispatcher is the
// event payload, translated through the registered mapping for the
// (source, target) pair when one exists. Failures become a recorded result
// and a sync-status error entry; they never abort siblings.
func (e *RuleEngine) executeAction(ctx context.Context, rule *domain.IntegrationRule, action domain.RuleAction, event *domain.CrossModuleEvent) domain.ActionResult {
	start := time.Now()
	target := action.TargetModule
	if target == "" {
		target = rule.TargetModule
	}
	result := domain.ActionResult{
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		ActionType:   action.ActionType,
		TargetModule: target,
	}

	record := event.Payload
	mapping, err := e.mappings.FindBySourceTarget(ctx, event.SourceModule, target)
	switch {
	case err == nil:
		mapped, mapErr := e.mapper.Apply(mapping, record)
		if mapErr != nil {
			return e.failAction(ctx, result, target, mapErr, start)
		}
		record = mapped
	case errors.Is(err, domain.ErrMappingNotFound):
		// No mapping for this pair; dispatch the raw payload.
	default:
		return e.failAction(ctx, result, target, err, start)
	}

	if action.ActionType == domain.ActionUpsertContact {
		if _, upErr := e.contacts.UpsertFromRecord(ctx, event.SourceModule, record); upErr != nil {
			return e.failAction(ctx, result, target, upErr, start)
		}
	} else {
		if _, dispErr := e.dispatcher.Dispatch(ctx, target, action.ActionType, action.Parameters, record); dispErr != nil {
			return e.failAction(ctx, result, target, dispErr, start)
		}
	}

	result.Duration = time.Since(start)
	metrics.IncrementActionsDispatched(target, "ok")
	metrics.ObserveDispatchDuration(target, result.Duration.Seconds())
	e.tracker.RecordDispatched(ctx, target, 1)
	return result
}

func (e *RuleEngine) failAction(ctx context.Context, result domain.ActionResult, target string, actionErr error, start time.Time) domain.ActionResult {
	result.Error = actionErr.Error()
	result.Duration = time.Since(start)
	metrics.IncrementActionsDispatched(target, "error")
	e.tracker.RecordFailure(ctx, target, actionErr)
	e.logger.Warn(ctx, "Rule action failed",
		"rule_id", result.RuleID, "action_type", result.ActionType,
		"target_module", target, "error", result.Error)
	return result
}

// sortRules fixes the deterministic execution order: created_at ascending,
// id as tiebreak for identical timestamps.
func sortRules(rules []*domain.IntegrationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
}
