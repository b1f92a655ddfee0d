package rbac

import (
	"context"
	"fmt"
	"sync"
)

// Evaluator answers permission checks against the current role model.
type Evaluator struct {
	model *Model
	mu    sync.RWMutex
}

func NewEvaluator(model *Model) *Evaluator {
	return &Evaluator{model: model}
}

// SetModel replaces the model wholesale. Policy reloads call it with the
// model of the freshly built engine.
func (e *Evaluator) SetModel(model *Model) {
	e.mu.Lock()
	e.model = model
	e.mu.Unlock()
}

func (e *Evaluator) Model() *Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// Authorize checks if the principal holds permission, deny by default. A
// principal whose role is not in the model yields ErrUnknownRole.
func (e *Evaluator) Authorize(_ context.Context, principal *Principal, permission Permission) (*Decision, error) {
	if principal == nil {
		return &Decision{Allowed: false, Reason: "no principal"}, nil
	}

	model := e.Model()
	if model == nil {
		return nil, fmt.Errorf("role model not loaded")
	}

	if !model.Known(principal.Role) {
		return nil, fmt.Errorf("%w %q", ErrUnknownRole, principal.Role)
	}

	if model.HasPermission(principal, permission) {
		return &Decision{Allowed: true}, nil
	}

	return &Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("no permission for %s", permission),
	}, nil
}
