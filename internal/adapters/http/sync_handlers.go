package http

import (
	"encoding/json"
	"net/http"

	"gitlab.com/cubelite/api/integration-engine/internal/application"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// TriggerSyncRequest is the payload for POST /sync. Either a module list
// or a (source, target) pair may be given; an empty request syncs every
// known module.
type TriggerSyncRequest struct {
	Modules []string `json:"modules,omitempty"`
	Source  string   `json:"source,omitempty"`
	Target  string   `json:"target,omitempty"`
}

func (r TriggerSyncRequest) modules() []string {
	modules := append([]string(nil), r.Modules...)
	if r.Source != "" {
		modules = append(modules, r.Source)
	}
	if r.Target != "" {
		modules = append(modules, r.Target)
	}
	return modules
}

// TriggerSyncHandler runs sync cycles for the requested modules and returns
// the resulting statuses once they finish.
func TriggerSyncHandler(svc *application.SyncService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqPayload TriggerSyncRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&reqPayload); err != nil {
				logger.Warn(r.Context(), "Failed to decode sync trigger payload", "error", err.Error())
				domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
				return
			}
			defer r.Body.Close()
		}

		statuses, err := svc.SyncModules(r.Context(), reqPayload.modules())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sync_status": statuses})
	}
}

// SyncStatusHandler returns the status of every known module.
func SyncStatusHandler(tracker *application.SyncTracker, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses, err := tracker.All(r.Context())
		if err != nil {
			logger.Error(r.Context(), "Failed to read sync statuses", "error", err.Error())
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sync_status": statuses})
	}
}

// GetSyncStatusHandler returns one module's status.
func GetSyncStatusHandler(tracker *application.SyncTracker, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := r.PathValue("module")
		if !domain.KnownModule(module) {
			writeDomainError(w, domain.ErrModuleUnknown)
			return
		}
		status, err := tracker.Status(r.Context(), module)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// AckSyncHandler acknowledges a module's error state, returning it to idle.
func AckSyncHandler(tracker *application.SyncTracker, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		module := r.PathValue("module")
		if !domain.KnownModule(module) {
			writeDomainError(w, domain.ErrModuleUnknown)
			return
		}
		status, err := tracker.Ack(r.Context(), module)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// DashboardStatsHandler returns the aggregate dashboard snapshot.
func DashboardStatsHandler(svc *application.DashboardService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := svc.Stats(r.Context())
		if err != nil {
			logger.Error(r.Context(), "Failed to assemble dashboard stats", "error", err.Error())
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
