package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload) // Best effort, nothing useful to do on encode failure.
}

// writeDomainError maps service errors onto the standard error response.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		configErr     *domain.ConfigurationError
		mappingErr    *domain.MappingError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &configErr), errors.As(err, &mappingErr):
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request", err.Error()).WriteJSON(w, http.StatusBadRequest)
	case errors.Is(err, domain.ErrRuleNotFound),
		errors.Is(err, domain.ErrMappingNotFound),
		errors.Is(err, domain.ErrContactNotFound),
		errors.Is(err, domain.ErrEventNotFound),
		errors.Is(err, domain.ErrModuleUnknown):
		domain.NewErrorResponse(domain.ErrNotFound, "Not found", err.Error()).WriteJSON(w, http.StatusNotFound)
	default:
		domain.NewErrorResponse(domain.ErrInternal, "Internal server error", err.Error()).WriteJSON(w, http.StatusInternalServerError)
	}
}
