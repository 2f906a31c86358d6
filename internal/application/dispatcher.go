package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gitlab.com/cubelite/api/integration-engine/internal/domain"
)

const defaultDispatchTimeout = 5 * time.Second

// DispatchRegistry is the engine-owned action dispatcher. Concrete handlers
// are supplied per module by the host (capability injection); the registry
// only enforces the bounded-timeout contract around each dispatch. A
// timeout is recorded as a per-action failure and is never retried here;
// cancellation is cooperative, so the handler goroutine is left to finish
// on its own.
type DispatchRegistry struct {
	logger   domain.Logger
	timeout  time.Duration
	mu       sync.RWMutex
	handlers map[string]domain.ModuleHandler
}

// NewDispatchRegistry constructs an empty registry. A zero timeout falls
// back to the default.
func NewDispatchRegistry(logger domain.Logger, timeout time.Duration) *DispatchRegistry {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &DispatchRegistry{
		logger:   logger,
		timeout:  timeout,
		handlers: make(map[string]domain.ModuleHandler),
	}
}

// Register installs (or replaces) the handler for a module.
func (r *DispatchRegistry) Register(module string, handler domain.ModuleHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[module] = handler
}

// Modules returns the registered module names, sorted.
func (r *DispatchRegistry) Modules() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modules := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	return modules
}

// Dispatch invokes the target module's handler under the bounded timeout.
// All failures come back as *domain.DispatchError.
func (r *DispatchRegistry) Dispatch(ctx context.Context, targetModule, actionType string, parameters map[string]string, record map[string]any) (*domain.DispatchAck, error) {
	r.mu.RLock()
	handler, ok := r.handlers[targetModule]
	r.mu.RUnlock()
	if !ok {
		return nil, &domain.DispatchError{
			Module:     targetModule,
			ActionType: actionType,
			Err:        fmt.Errorf("no handler registered for module %q", targetModule),
		}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		ack *domain.DispatchAck
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ack, err := handler.Handle(dispatchCtx, actionType, parameters, record)
		done <- outcome{ack: ack, err: err}
	}()

	select {
	case <-dispatchCtx.Done():
		r.logger.Warn(ctx, "Dispatch timed out",
			"target_module", targetModule, "action_type", actionType, "timeout", r.timeout.String())
		return nil, &domain.DispatchError{
			Module:     targetModule,
			ActionType: actionType,
			Timeout:    true,
			Err:        dispatchCtx.Err(),
		}
	case out := <-done:
		if out.err != nil {
			return nil, &domain.DispatchError{
				Module:     targetModule,
				ActionType: actionType,
				Err:        out.err,
			}
		}
		if out.ack == nil {
			out.ack = &domain.DispatchAck{Module: targetModule}
		}
		return out.ack, nil
	}
}
