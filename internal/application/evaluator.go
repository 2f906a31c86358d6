package application

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// EvaluateCondition applies one rule condition to an event payload. It is a
// pure predicate and never returns an error: a missing field evaluates
// exists to false and every comparison against a missing field to false, so
// one malformed rule cannot abort evaluation of an entire event.
func EvaluateCondition(cond domain.RuleCondition, payload map[string]any) bool {
	value, found := resolvePath(payload, cond.Field)

	switch cond.Operator {
	case domain.OpExists:
		return found && value != nil
	case domain.OpEq:
		return found && looseEqual(value, cond.Value)
	case domain.OpNeq:
		return found && !looseEqual(value, cond.Value)
	case domain.OpGt, domain.OpLt, domain.OpGte, domain.OpLte:
		if !found {
			return false
		}
		left, ok := toFloat(value)
		if !ok {
			return false
		}
		right, err := strconv.ParseFloat(strings.TrimSpace(cond.Value), 64)
		if err != nil {
			return false
		}
		switch cond.Operator {
		case domain.OpGt:
			return left > right
		case domain.OpLt:
			return left < right
		case domain.OpGte:
			return left >= right
		default:
			return left <= right
		}
	case domain.OpContains:
		return found && containsValue(value, cond.Value)
	default:
		// Unknown operators are rejected at registration; fail closed if
		// one slips through a store written by an older version.
		return false
	}
}

// RuleMatches reports whether a rule's trigger and all of its conditions
// hold for the event. An empty condition list is vacuously true.
func RuleMatches(rule *domain.IntegrationRule, event *domain.CrossModuleEvent) bool {
	if !rule.Enabled {
		return false
	}
	if rule.SourceModule != event.SourceModule || rule.TriggerEvent != event.EventType {
		return false
	}
	for _, cond := range rule.Conditions {
		if !EvaluateCondition(cond, event.Payload) {
			return false
		}
	}
	return true
}

// resolvePath walks a dot-path ("lead.score") into nested maps. The second
// return value reports whether the full path resolved.
func resolvePath(payload map[string]any, path string) (any, bool) {
	if payload == nil || path == "" {
		return nil, false
	}
	current := any(payload)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// looseEqual compares a payload value against a condition's string value.
// When both sides parse as numbers the comparison is numeric, so "50" and
// 50.0 are equal; otherwise both sides are compared as strings. Coercion is
// limited to eq/neq on purpose.
func looseEqual(value any, condValue string) bool {
	if left, ok := toFloat(value); ok {
		if right, err := strconv.ParseFloat(strings.TrimSpace(condValue), 64); err == nil {
			return left == right
		}
	}
	return stringify(value) == condValue
}

// containsValue implements the contains operator: substring for strings,
// membership for sequences.
func containsValue(value any, condValue string) bool {
	switch v := value.(type) {
	case string:
		return strings.Contains(v, condValue)
	case []any:
		for _, item := range v {
			if looseEqual(item, condValue) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range v {
			if item == condValue {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
