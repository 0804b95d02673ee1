package loader

import "sync"

// Registry is the in-process module constructor registry: the Go-native
// replacement for "load the artifact and locate its mount entry point"
// (spec.md §4.7 step 4). A Go binary cannot dynamically import arbitrary
// code the way the source runtime could, so in-process modules register
// their Constructor here (typically from an init() in the module's own
// package) and the loader looks them up by module id.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register associates moduleID with ctor. A later call for the same id
// replaces the prior registration silently (like the coordinator's
// single-holder slot replacement, but without a log entry: registration here
// is process-lifetime setup, not session-scoped mounting).
func (r *Registry) Register(moduleID string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[moduleID] = ctor
}

// Lookup returns the constructor registered for moduleID, if any.
func (r *Registry) Lookup(moduleID string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.constructors[moduleID]
	return ctor, ok
}
