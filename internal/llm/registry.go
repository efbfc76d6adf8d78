package llm

import (
	"fmt"
	"sync"

	"github.com/soyeahso/parley/internal/logging"
)

// Registry maps model references to provider clients. It is constructed
// once at startup and passed by reference wherever a client is needed;
// there is no package-level registry.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered model provider")
}

// Alias maps a model name to a provider, so "llama3" can resolve to the
// "ollama" client.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the provider used when nothing else matches.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the client for a model reference. Resolution order:
// exact provider name, alias, fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no model provider for %q", model)
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	return names
}
