package effector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sentinelops/arbiter/types"
)

// Result is the outcome of one effector invocation
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Effector performs the real-world action behind an approved decision:
// isolating a host, blocking an IP. The engine never sees effector
// internals; this contract is the entire surface.
type Effector interface {
	Name() string
	Execute(ctx context.Context, action types.Action) (Result, error)
}

// Registry maps each action type to exactly one effector. It is built
// once at startup and read-only afterwards.
type Registry struct {
	mu        sync.RWMutex
	effectors map[string]Effector
	sealed    bool
}

// NewRegistry creates an empty effector registry
func NewRegistry() *Registry {
	return &Registry{
		effectors: make(map[string]Effector),
	}
}

// Register binds an action type to an effector. Duplicate bindings and
// registration after Seal are programming errors.
func (r *Registry) Register(actionType string, e Effector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("registry is sealed, cannot register %s", actionType)
	}
	if actionType == "" {
		return fmt.Errorf("action type cannot be empty")
	}
	if e == nil {
		return fmt.Errorf("effector for %s cannot be nil", actionType)
	}
	if _, exists := r.effectors[actionType]; exists {
		return fmt.Errorf("effector for %s already registered", actionType)
	}

	r.effectors[actionType] = e
	return nil
}

// Seal freezes the registry; resolution only from here on
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Resolve returns the effector for an action type
func (r *Registry) Resolve(actionType string) (Effector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.effectors[actionType]
	if !ok {
		return nil, fmt.Errorf("no effector registered for action type %s", actionType)
	}
	return e, nil
}

// Types returns the registered action types, sorted
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.effectors))
	for t := range r.effectors {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}
