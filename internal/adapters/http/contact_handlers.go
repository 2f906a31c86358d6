package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"gitlab.com/cubelite/api/integration-engine/internal/application"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// UpsertContactHandler creates or merge-updates a unified contact.
func UpsertContactHandler(svc *application.ContactService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var partial domain.UnifiedContact
		if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
			logger.Warn(r.Context(), "Failed to decode contact payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		contact, err := svc.Upsert(r.Context(), partial)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, contact)
	}
}

// ListContactsHandler returns contacts, optionally filtered by a ?search
// substring over name, email, and company.
func ListContactsHandler(svc *application.ContactService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				domain.NewErrorResponse(domain.ErrBadRequest, "Invalid limit", "limit must be a non-negative integer").WriteJSON(w, http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		contacts, err := svc.List(r.Context(), limit, r.URL.Query().Get("search"))
		if err != nil {
			logger.Error(r.Context(), "Failed to list contacts", "error", err.Error())
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts, "count": len(contacts)})
	}
}

// GetContactHandler returns one contact by id, following merge redirects.
func GetContactHandler(svc *application.ContactService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contact, err := svc.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, contact)
	}
}

// MergeContactsRequest is the payload for POST /contacts/merge.
type MergeContactsRequest struct {
	PrimaryID   string `json:"primary_id"`
	SecondaryID string `json:"secondary_id"`
}

// MergeContactsHandler merges the secondary contact into the primary.
func MergeContactsHandler(svc *application.ContactService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqPayload MergeContactsRequest
		if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
			logger.Warn(r.Context(), "Failed to decode merge payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if reqPayload.PrimaryID == "" || reqPayload.SecondaryID == "" {
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid payload", "primary_id and secondary_id are required.").WriteJSON(w, http.StatusBadRequest)
			return
		}

		merged, err := svc.Merge(r.Context(), reqPayload.PrimaryID, reqPayload.SecondaryID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, merged)
	}
}
