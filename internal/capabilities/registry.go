// Package capabilities is the embedded catalogue of continuation models.
package capabilities

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"plotline/internal/domain"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Provider files loaded by NewRegistry, in listing order
var builtinProviders = []string{"lorem", "anthropic"}

// Registry indexes model capabilities by model id
type Registry struct {
	mu        sync.RWMutex
	providers []*ProviderCapabilities
	byModel   map[string]*ModelCapabilities
}

// NewRegistry loads the embedded provider files. A model id may appear
// in only one provider.
func NewRegistry() (*Registry, error) {
	r := &Registry{byModel: make(map[string]*ModelCapabilities)}
	for _, name := range builtinProviders {
		data, err := configFiles.ReadFile("config/" + name + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("read %s capabilities: %w", name, err)
		}
		if err := r.load(data); err != nil {
			return nil, fmt.Errorf("load %s capabilities: %w", name, err)
		}
	}
	return r, nil
}

func (r *Registry) load(data []byte) error {
	var provider ProviderCapabilities
	if err := yaml.Unmarshal(data, &provider); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range provider.Models {
		m := &provider.Models[i]
		if existing, ok := r.byModel[m.ID]; ok {
			return fmt.Errorf("model %s already defined by %s", m.ID, existing.Provider)
		}
		r.byModel[m.ID] = m
	}
	r.providers = append(r.providers, &provider)
	return nil
}

// FindModel looks a model up across all providers.
// Unknown models are validation errors: the caller asked for something we don't serve.
func (r *Registry) FindModel(model string) (*ModelCapabilities, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byModel[model]
	if !ok {
		return nil, fmt.Errorf("%w: unknown model %q", domain.ErrValidation, model)
	}
	return m, nil
}

// Models lists every model, grouped by provider in load order and in
// YAML order within a provider. When providers is non-empty only those
// providers are listed.
func (r *Registry) Models(providers ...string) []ModelCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[string]bool, len(providers))
	for _, p := range providers {
		want[p] = true
	}

	var out []ModelCapabilities
	for _, p := range r.providers {
		if len(want) > 0 && !want[p.Provider] {
			continue
		}
		out = append(out, p.Models...)
	}
	return out
}
