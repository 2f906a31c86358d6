package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"gitlab.com/cubelite/api/integration-engine/internal/application"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// EmitEventRequest is the expected payload for POST /events.
type EmitEventRequest struct {
	EventType     string         `json:"event_type"`
	SourceModule  string         `json:"source_module"`
	TargetModules []string       `json:"target_modules,omitempty"`
	Payload       map[string]any `json:"payload"`
}

// EmitEventHandler accepts a new cross-module event.
func EmitEventHandler(svc *application.EventService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqPayload EmitEventRequest
		if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
			logger.Warn(r.Context(), "Failed to decode emit payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		event, err := svc.Emit(r.Context(), reqPayload.EventType, reqPayload.SourceModule, reqPayload.TargetModules, reqPayload.Payload)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, event)
	}
}

// ListEventsHandler returns recent events, newest first. Supports ?limit
// and ?source_module query filters.
func ListEventsHandler(svc *application.EventService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := domain.EventFilter{
			SourceModule: r.URL.Query().Get("source_module"),
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 0 {
				domain.NewErrorResponse(domain.ErrBadRequest, "Invalid limit", "limit must be a non-negative integer").WriteJSON(w, http.StatusBadRequest)
				return
			}
			filter.Limit = limit
		}

		events, err := svc.List(r.Context(), filter)
		if err != nil {
			logger.Error(r.Context(), "Failed to list events", "error", err.Error())
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
	}
}
