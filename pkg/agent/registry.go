package agent

import (
	"sort"
	"sync"
)

// Entry describes a registered agent in the directory.
type Entry struct {
	Name  string
	Role  string
	Model string
}

// Registry is a thread-safe directory of agents keyed by name.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]*Agent)}
}

// Register adds agents to the registry. An agent with the same name replaces
// the previous one.
func (r *Registry) Register(agents ...*Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range agents {
		r.agents[a.Name()] = a
	}
}

// Get returns the named agent and true, or nil and false if not found.
func (r *Registry) Get(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[name]
	return a, ok
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// List returns all registry entries sorted by name.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.agents))
	for _, a := range r.agents {
		entries = append(entries, Entry{Name: a.Name(), Role: a.Role(), Model: a.Model()})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return entries
}
