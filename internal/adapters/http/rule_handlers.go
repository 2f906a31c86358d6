package http

import (
	"encoding/json"
	"net/http"

	"gitlab.com/cubelite/api/integration-engine/internal/application"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// CreateRuleHandler registers a new integration rule.
func CreateRuleHandler(engine *application.RuleEngine, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule := &domain.IntegrationRule{}
		if err := json.NewDecoder(r.Body).Decode(rule); err != nil {
			logger.Warn(r.Context(), "Failed to decode rule payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		created, err := engine.Register(r.Context(), rule)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// ListRulesHandler returns all rules in execution order.
func ListRulesHandler(engine *application.RuleEngine, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := engine.List(r.Context())
		if err != nil {
			logger.Error(r.Context(), "Failed to list rules", "error", err.Error())
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
	}
}

// GetRuleHandler returns one rule by id.
func GetRuleHandler(engine *application.RuleEngine, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rule, err := engine.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	}
}

// UpdateRuleHandler applies a partial patch to a rule.
func UpdateRuleHandler(engine *application.RuleEngine, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch domain.RulePatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			logger.Warn(r.Context(), "Failed to decode rule patch", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		updated, err := engine.Update(r.Context(), r.PathValue("id"), patch)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// DeleteRuleHandler removes a rule.
func DeleteRuleHandler(engine *application.RuleEngine, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
