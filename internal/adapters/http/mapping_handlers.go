package http

import (
	"encoding/json"
	"net/http"

	"gitlab.com/cubelite/api/integration-engine/internal/application"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// CreateMappingHandler registers a new data mapping.
func CreateMappingHandler(mapper *application.MappingService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mapping := &domain.DataMapping{}
		if err := json.NewDecoder(r.Body).Decode(mapping); err != nil {
			logger.Warn(r.Context(), "Failed to decode mapping payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		created, err := mapper.Register(r.Context(), mapping)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

// ListMappingsHandler returns all registered mappings.
func ListMappingsHandler(mapper *application.MappingService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mappings, err := mapper.List(r.Context())
		if err != nil {
			logger.Error(r.Context(), "Failed to list mappings", "error", err.Error())
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"mappings": mappings, "count": len(mappings)})
	}
}

// GetMappingHandler returns one mapping by id.
func GetMappingHandler(mapper *application.MappingService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mapping, err := mapper.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, mapping)
	}
}

// ApplyMappingRequest is the payload for POST /mappings/{id}/apply.
type ApplyMappingRequest struct {
	Records []map[string]any `json:"records"`
}

// ApplyMappingResult pairs one input record's output with its error, by
// batch position.
type ApplyMappingResult struct {
	Record map[string]any `json:"record,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// ApplyMappingHandler runs a batch of records through a mapping. Records
// fail independently; the response preserves batch order.
func ApplyMappingHandler(mapper *application.MappingService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqPayload ApplyMappingRequest
		if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
			logger.Warn(r.Context(), "Failed to decode apply payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		mapping, err := mapper.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}

		records, errs := mapper.ApplyBatch(mapping, reqPayload.Records)
		results := make([]ApplyMappingResult, len(records))
		failed := 0
		for i := range records {
			results[i].Record = records[i]
			if errs[i] != nil {
				results[i].Error = errs[i].Error()
				failed++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"results": results,
			"total":   len(results),
			"failed":  failed,
		})
	}
}
