package ai

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/BaSui01/clipflow/types"
)

// Registry is a thread-safe registry of capability provider chains.
// Providers registered under the same capability form an ordered fallback
// chain: the orchestrator walks it front to back until one call succeeds.
type Registry struct {
	chains map[Capability][]Provider
	byName map[string]Provider
	limits map[string]*rate.Limiter
	mu     sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		chains: make(map[Capability][]Provider),
		byName: make(map[string]Provider),
		limits: make(map[string]*rate.Limiter),
	}
}

// Register appends a provider to the chain of its capability.
// Registration order defines fallback priority. Provider names are unique
// across the whole registry; registering a duplicate name is rejected so a
// chain entry is never ambiguous.
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return types.NewError(types.ErrValidation, "provider is nil")
	}
	if p.Name() == "" {
		return types.NewError(types.ErrValidation, "provider name is empty")
	}
	if !p.Capability().Valid() {
		return types.NewError(types.ErrValidation, fmt.Sprintf("unknown capability %q", p.Capability()))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[p.Name()]; ok {
		return types.NewError(types.ErrProviderDuplicate, fmt.Sprintf("provider %q already registered", p.Name()))
	}
	r.byName[p.Name()] = p
	r.chains[p.Capability()] = append(r.chains[p.Capability()], p)
	return nil
}

// Chain returns a copy of the provider chain for a capability, in fallback
// order. The copy keeps callers from mutating registry state.
func (r *Registry) Chain(c Capability) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := r.chains[c]
	out := make([]Provider, len(chain))
	copy(out, chain)
	return out
}

// SetChain reorders the chain of a capability to the given provider names.
// Every name must already be registered under that capability; names left
// out are dropped from the chain but stay registered.
func (r *Registry) SetChain(c Capability, names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[string]Provider, len(r.chains[c]))
	for _, p := range r.chains[c] {
		current[p.Name()] = p
	}

	next := make([]Provider, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return types.NewError(types.ErrProviderDuplicate, fmt.Sprintf("provider %q listed twice for %s", name, c))
		}
		seen[name] = true
		p, ok := current[name]
		if !ok {
			return types.NewError(types.ErrProviderNotFound, fmt.Sprintf("provider %q not registered for %s", name, c))
		}
		next = append(next, p)
	}
	r.chains[c] = next
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// SetLimit attaches a client-side rate limit to a provider. The orchestrator
// waits on the limiter before each call attempt. rps <= 0 removes the limit.
func (r *Registry) SetLimit(name string, rps float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rps <= 0 {
		delete(r.limits, name)
		return
	}
	if burst < 1 {
		burst = 1
	}
	r.limits[name] = rate.NewLimiter(rate.Limit(rps), burst)
}

// Limiter returns the rate limiter for a provider, or nil when unlimited.
func (r *Registry) Limiter(name string) *rate.Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limits[name]
}

// List returns the sorted names of all registered providers.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the chain length for a capability.
func (r *Registry) Len(c Capability) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chains[c])
}
