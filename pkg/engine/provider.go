package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/germanamz/crewtrace/pkg/modeladapter"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
	"github.com/germanamz/crewtrace/pkg/providers/openai"
)

// Built-in provider kinds.
const (
	KindOpenAI    = "openai"
	KindIntercept = "intercept"
)

var (
	// ErrRegistryFrozen is returned by Register once agents have been built
	// from the registry.
	ErrRegistryFrozen = errors.New("engine: provider registry is frozen")

	// ErrUnknownProvider is returned when no factory is registered for a kind.
	ErrUnknownProvider = errors.New("engine: unknown provider kind")
)

// ProviderDeps carries engine-owned collaborators into provider factories.
type ProviderDeps struct {
	Ledger  *usage.Ledger
	Logger  *slog.Logger
	Timeout time.Duration
}

// ProviderFactory creates a Provider from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig, deps ProviderDeps) (modeladapter.Provider, error)

// Registry maps provider kinds to factories. It is safe for concurrent use.
// Once frozen, the set of factories cannot change, so every agent built from
// it sees the same provider for a given kind.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
	frozen    bool
}

// NewRegistry returns a Registry holding the built-in kinds.
func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]ProviderFactory{
			KindOpenAI:    newOpenAI,
			KindIntercept: newIntercept,
		},
	}
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, factory ProviderFactory) error {
	if kind == "" || factory == nil {
		return errors.New("engine: register provider: kind and factory are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, kind)
	}

	r.factories[kind] = factory

	return nil
}

// Lookup returns the factory for kind.
func (r *Registry) Lookup(kind string) (ProviderFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[kind]
	return f, ok
}

// Kinds returns the registered kinds sorted by name.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	return kinds
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.frozen
}

// build creates a provider for cfg using the factory registered for kind.
func (r *Registry) build(kind string, cfg ProviderConfig, deps ProviderDeps) (modeladapter.Provider, error) {
	factory, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProvider, kind)
	}

	return factory(cfg, deps)
}

func newOpenAI(cfg ProviderConfig, deps ProviderDeps) (modeladapter.Provider, error) {
	a := openai.New(cfg.BaseURL, cfg.APIKey, cfg.Model)
	applyProviderConfig(&a.ModelAdapter, cfg, deps)

	return a, nil
}

func newIntercept(cfg ProviderConfig, deps ProviderDeps) (modeladapter.Provider, error) {
	a := openai.NewIntercepted(cfg.BaseURL, cfg.APIKey, cfg.Model, deps.Ledger, usage.SourceAgentFramework)
	a.Log = deps.Logger
	applyProviderConfig(&a.ModelAdapter, cfg, deps)

	return a, nil
}

func applyProviderConfig(a *modeladapter.ModelAdapter, cfg ProviderConfig, deps ProviderDeps) {
	if cfg.Temperature != nil {
		a.Temperature = *cfg.Temperature
	}
	a.MaxTokens = cfg.MaxTokens
	a.Timeout = deps.Timeout
	a.Auth.Header = cfg.AuthHeader
	a.Auth.Scheme = cfg.AuthScheme
	a.Headers = cfg.Headers
}
