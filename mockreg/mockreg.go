// Package mockreg tracks and resets test doubles between test cases.
//
// A Registry is owned by exactly one WorkerTask; mocks registered while one
// file executes are never observable from another file. Resets happen at an
// explicit call from the runner at case boundaries, not through hidden
// global state.
package mockreg

// ResetPolicy controls what happens to registered mocks at the boundary
// between cases. When both flags are set, restoration happens after
// clearing.
type ResetPolicy struct {
	ClearCalls bool `yaml:"clearCalls"`
	Restore    bool `yaml:"restoreMocks"`
}

// Handle is one registered test double: it shadows a function binding and
// records every call made through it.
type Handle struct {
	Name  string
	Calls []string

	active bool // false after a restoring reset
}

// Active reports whether the mock still shadows the original implementation.
func (h *Handle) Active() bool { return h.active }

// Record appends one observed call.
func (h *Handle) Record(detail string) {
	h.Calls = append(h.Calls, detail)
}

// Registry keeps the mocks registered during the current case. It is
// worker-local and needs no locking.
type Registry struct {
	mocks map[string]*Handle
	order []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{mocks: make(map[string]*Handle)}
}

// Register creates (or returns) the mock shadowing name.
func (r *Registry) Register(name string) *Handle {
	if h, ok := r.mocks[name]; ok {
		h.active = true
		return h
	}
	h := &Handle{Name: name, active: true}
	r.mocks[name] = h
	r.order = append(r.order, name)
	return h
}

// Lookup returns the active mock for name, if any.
func (r *Registry) Lookup(name string) (*Handle, bool) {
	h, ok := r.mocks[name]
	if !ok || !h.active {
		return nil, false
	}
	return h, true
}

// Count returns how many mocks are currently registered, active or not.
func (r *Registry) Count() int { return len(r.mocks) }

// Reset applies the policy at a case boundary. Clearing drops recorded
// calls; restoring re-binds the original implementation by deactivating and
// forgetting the handle. No handle created during case N is observable
// during case N+1 when either flag is set, and restored handles are dropped
// entirely so identity cannot leak between cases.
func (r *Registry) Reset(policy ResetPolicy) {
	if policy.ClearCalls {
		for _, h := range r.mocks {
			h.Calls = nil
		}
	}
	if policy.Restore {
		for _, h := range r.mocks {
			h.active = false
		}
		r.mocks = make(map[string]*Handle)
		r.order = nil
	}
}
