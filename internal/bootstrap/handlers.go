package bootstrap

import (
	"context"
	"fmt"

	"gitlab.com/cubelite/api/integration-engine/internal/application"
	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

// registerBuiltinHandlers wires an acknowledging handler for every known
// module so dispatches succeed out of the box. Hosts embedding the engine
// overwrite these registrations with handlers that reach their real modules.
func registerBuiltinHandlers(registry *application.DispatchRegistry, appLogger domain.Logger) {
	for _, module := range domain.KnownModules {
		module := module
		registry.Register(module, domain.ModuleHandlerFunc(func(ctx context.Context, actionType string, parameters map[string]string, record map[string]any) (*domain.DispatchAck, error) {
			appLogger.Info(ctx, "Builtin handler acknowledged dispatch",
				"module", module,
				"action_type", actionType,
				"record_fields", len(record),
			)
			return &domain.DispatchAck{
				Module: module,
				Detail: fmt.Sprintf("%s accepted %s", module, actionType),
			}, nil
		}))
	}
}
