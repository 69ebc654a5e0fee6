package livediff

import (
	"fmt"
	"sync"
)

// Registry maps template identity to compiled static fragments. The
// template-compilation layer registers each template site once; render
// codepaths then construct arity-checked trees bound to a site. The registry
// is an explicit value passed by reference, not ambient global state, so the
// core stays testable in isolation.
type Registry struct {
	mu      sync.RWMutex
	statics map[string][]string
}

// NewRegistry creates an empty template registry.
func NewRegistry() *Registry {
	return &Registry{statics: make(map[string][]string)}
}

// Register records the compiled statics for a template site. Registering the
// same site twice with different statics indicates a compilation bug and
// fails; re-registering identical statics is a no-op.
func (r *Registry) Register(site string, statics []string) error {
	if site == "" {
		return fmt.Errorf("livediff: template site name cannot be empty")
	}
	if len(statics) == 0 {
		return fmt.Errorf("%w: template %q has no static fragments", ErrArityMismatch, site)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.statics[site]; ok {
		if !staticsEqual(existing, statics) {
			return fmt.Errorf("%w: template %q re-registered with different statics", ErrStructuralMismatch, site)
		}
		return nil
	}
	stored := make([]string, len(statics))
	copy(stored, statics)
	r.statics[site] = stored
	return nil
}

// Statics returns the compiled statics for a site.
func (r *Registry) Statics(site string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statics, ok := r.statics[site]
	if !ok {
		return nil, false
	}
	out := make([]string, len(statics))
	copy(out, statics)
	return out, true
}

// New constructs a rendered tree for a registered template site. The
// dynamics must match the site's arity exactly.
func (r *Registry) New(site string, dynamics ...Dynamic) (*Tree, error) {
	r.mu.RLock()
	statics, ok := r.statics[site]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("livediff: unknown template site %q", site)
	}
	return NewTree(statics, dynamics...)
}
