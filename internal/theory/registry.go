package theory

import (
	"fmt"
	"sync"
)

// #region registry

// Registry holds the live theory set. Reads come from validators and the
// fuser; writes happen only during configuration loading.
type Registry struct {
	mu       sync.RWMutex
	theories map[Kind]Theory
}

// NewRegistry creates a registry pre-populated with the builtin set.
func NewRegistry() *Registry {
	r := &Registry{theories: make(map[Kind]Theory)}
	for _, th := range Builtin() {
		r.theories[th.Kind] = th
	}
	return r
}

// Register adds or replaces a theory. The kind must belong to the closed set.
func (r *Registry) Register(th Theory) error {
	if !knownKind(th.Kind) {
		return fmt.Errorf("register theory: unknown kind %q", th.Kind)
	}
	if th.Weight < 0 || th.Weight > 1 {
		return fmt.Errorf("register theory %s: weight %f out of [0,1]", th.Kind, th.Weight)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.theories[th.Kind] = th
	return nil
}

// Get retrieves a theory by kind.
func (r *Registry) Get(k Kind) (Theory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	th, ok := r.theories[k]
	return th, ok
}

// UpdateWeight adjusts one theory's fusion weight.
func (r *Registry) UpdateWeight(k Kind, weight float64) error {
	if weight < 0 || weight > 1 {
		return fmt.Errorf("update theory %s: weight %f out of [0,1]", k, weight)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	th, ok := r.theories[k]
	if !ok {
		return fmt.Errorf("update theory: %q not registered", k)
	}
	th.Weight = weight
	r.theories[k] = th
	return nil
}

// List returns registered theories in fixed kind order.
func (r *Registry) List() []Theory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Theory, 0, len(r.theories))
	for _, k := range Kinds {
		if th, ok := r.theories[k]; ok {
			out = append(out, th)
		}
	}
	return out
}

func knownKind(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// #endregion registry
