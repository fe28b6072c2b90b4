package detection

import (
	"fmt"
	"log"
	"sort"
)

// Registered pairs a detector with its configured defaults. The defaults
// apply when a request does not name its own labels or threshold.
type Registered struct {
	Detector         Detector
	DefaultLabels    []string
	DefaultThreshold float64
}

// Registry holds the named detectors available to the orchestrator. It is
// built once at startup and never mutated afterwards; Close releases every
// detector at shutdown.
type Registry struct {
	entries map[string]Registered
}

// NewRegistry builds a registry from the given entries. The map is copied,
// so later mutation by the caller does not affect the registry.
func NewRegistry(entries map[string]Registered) *Registry {
	copied := make(map[string]Registered, len(entries))
	for name, entry := range entries {
		copied[name] = entry
	}
	return &Registry{entries: copied}
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Registered, bool) {
	entry, ok := r.entries[name]
	return entry, ok
}

// Names returns the registered detector names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered detectors.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Close releases every registered detector. All detectors are closed even
// if some fail; the first failure is returned.
func (r *Registry) Close() error {
	var firstErr error
	for _, name := range r.Names() {
		entry := r.entries[name]
		if err := entry.Detector.Close(); err != nil {
			log.Printf("[Registry] Failed to close detector %s: %v", name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("close detector %s: %w", name, err)
			}
		}
	}
	return firstErr
}
