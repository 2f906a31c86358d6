package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// EventIDKey is the context key for storing and retrieving the id of the
	// cross-module event currently being processed.
	EventIDKey contextKey = "event_id"

	// RuleIDKey is the context key for the rule whose actions are executing.
	RuleIDKey contextKey = "rule_id"

	// ModuleKey is the context key for the module a dispatch or sync cycle
	// targets.
	ModuleKey contextKey = "module"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
