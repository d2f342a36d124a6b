package config

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/costlens/costlens/pkg/provider/llm"
	"github.com/costlens/costlens/pkg/provider/llm/anyllm"
	"github.com/costlens/costlens/pkg/provider/llm/openai"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps model provider names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func(ModelConfig) (llm.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]func(ModelConfig) (llm.Provider, error)),
	}
}

// Register registers a model provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory func(ModelConfig) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates a model provider using the factory registered under
// cfg.Provider. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) Create(cfg ModelConfig) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with every provider in
// [ValidModelProviders] wired up. "openai" uses the native SDK-backed
// provider; everything else goes through the any-llm multi-provider
// backend.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register("openai", func(cfg ModelConfig) (llm.Provider, error) {
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, cfg.Name, opts...)
	})

	for _, name := range ValidModelProviders {
		if name == "openai" {
			continue
		}
		r.Register(name, anyllmFactory(name))
	}
	return r
}

func anyllmFactory(provider string) func(ModelConfig) (llm.Provider, error) {
	return func(cfg ModelConfig) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if cfg.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
		}
		return anyllm.New(provider, cfg.Name, opts...)
	}
}
