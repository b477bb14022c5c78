package alarms

import "sync"

// SourceRegistry is the ordered set of human-readable emergency sources seen
// since start-up.
type SourceRegistry struct {
	mu           sync.RWMutex
	sources      []string
	index        map[string]struct{}
	allowRemoval bool
}

// RegistryOption configures a source registry.
type RegistryOption func(*SourceRegistry)

// WithRemoval enables Remove and Clear.
func WithRemoval(enabled bool) RegistryOption {
	return func(r *SourceRegistry) {
		r.allowRemoval = enabled
	}
}

// NewSourceRegistry constructs an empty registry.
func NewSourceRegistry(opts ...RegistryOption) *SourceRegistry {
	r := &SourceRegistry{index: make(map[string]struct{})}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Add appends description unless it is already present. It reports whether
// the set changed.
func (r *SourceRegistry) Add(description string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[description]; ok {
		return false
	}
	r.index[description] = struct{}{}
	r.sources = append(r.sources, description)
	return true
}

// List returns the sources in insertion order.
func (r *SourceRegistry) List() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.sources...)
}

// Len returns the number of registered sources.
func (r *SourceRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// RemovalEnabled reports whether Remove and Clear are permitted.
func (r *SourceRegistry) RemovalEnabled() bool {
	return r != nil && r.allowRemoval
}

// Remove deletes one source.
func (r *SourceRegistry) Remove(description string) error {
	if !r.RemovalEnabled() {
		return ErrRemovalDisabled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[description]; !ok {
		return ErrNotFound
	}
	delete(r.index, description)
	for i, s := range r.sources {
		if s == description {
			r.sources = append(r.sources[:i:i], r.sources[i+1:]...)
			break
		}
	}
	return nil
}

// Clear empties the registry.
func (r *SourceRegistry) Clear() error {
	if !r.RemovalEnabled() {
		return ErrRemovalDisabled
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = nil
	r.index = make(map[string]struct{})
	return nil
}
