package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific error condition.
type ErrorCode string

const (
	ErrInvalidAPIKey    ErrorCode = "InvalidAPIKey"       // HTTP 401
	ErrBadRequest       ErrorCode = "BadRequest"          // HTTP 400, malformed emit/register input
	ErrNotFound         ErrorCode = "NotFound"            // HTTP 404
	ErrConflict         ErrorCode = "Conflict"            // HTTP 409, e.g. sync cycle already running
	ErrMethodNotAllowed ErrorCode = "MethodNotAllowed"    // HTTP 405
	ErrInternal         ErrorCode = "InternalServerError" // HTTP 500
)

// ErrorResponse is the standard error format returned to clients as JSON.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not typically handled here.
}

// Sentinel errors for lookups against the persisted configuration surfaces.
var (
	ErrRuleNotFound    = errors.New("integration rule not found")
	ErrMappingNotFound = errors.New("data mapping not found")
	ErrContactNotFound = errors.New("unified contact not found")
	ErrEventNotFound   = errors.New("event not found")
	ErrModuleUnknown   = errors.New("module has no sync status")
)

// ValidationError rejects malformed emit or registration input
// synchronously; nothing is persisted when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ConfigurationError marks an unknown operator or transform type at rule or
// mapping registration time. It is a hard rejection, never deferred to
// runtime.
type ConfigurationError struct {
	Kind  string // "operator", "transform_type", ...
	Value string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: unknown %s %q", e.Kind, e.Value)
}

// MappingError fails one record of a mapping application. Sibling records
// in the same batch are unaffected.
type MappingError struct {
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping failed on field %q: %s", e.Field, e.Reason)
}

// DispatchError records an external module handler failure or timeout. It
// is captured against the action and the module's sync status, and does not
// abort sibling actions or rules.
type DispatchError struct {
	Module     string
	ActionType string
	Timeout    bool
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("dispatch to %s (%s) timed out", e.Module, e.ActionType)
	}
	return fmt.Sprintf("dispatch to %s (%s) failed: %v", e.Module, e.ActionType, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
