// Package catalog maintains the model registry: the statically declared
// catalog plus models discovered at runtime from a local Ollama instance.
package catalog

import (
	"embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var embeddedCatalog embed.FS

// providerPriority orders providers for default-model selection.
var providerPriority = []Provider{
	ProviderAnthropic,
	ProviderOpenAI,
	ProviderGoogle,
	ProviderDeepSeek,
	ProviderMistral,
	ProviderPerplexity,
	ProviderOllama,
}

// Registry is a lookup table of model descriptors keyed by id.
// Registered models are immutable; the registry itself is append-only.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Model
	order []string
}

// Load builds a Registry from the embedded static catalog.
func Load() (*Registry, error) {
	data, err := embeddedCatalog.ReadFile("models.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded catalog: %w", err)
	}

	var doc struct {
		Models []Model `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}
	if len(doc.Models) == 0 {
		return nil, fmt.Errorf("model catalog is empty")
	}

	r := &Registry{byID: make(map[string]Model, len(doc.Models))}
	for _, m := range doc.Models {
		m.Source = SourceStatic
		if err := r.add(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewRegistry builds a Registry from an explicit model list. Used by tests
// and callers that supply their own catalog.
func NewRegistry(models []Model) (*Registry, error) {
	r := &Registry{byID: make(map[string]Model, len(models))}
	for _, m := range models {
		if m.Source == "" {
			m.Source = SourceStatic
		}
		if err := r.add(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(m Model) error {
	if m.ID == "" {
		return fmt.Errorf("model with empty id")
	}
	if _, exists := r.byID[m.ID]; exists {
		return fmt.Errorf("duplicate model id %q", m.ID)
	}
	r.byID[m.ID] = m
	r.order = append(r.order, m.ID)
	return nil
}

// Add registers a discovered model. Duplicates are rejected so that a
// rediscovery pass cannot mutate an existing descriptor.
func (r *Registry) Add(m Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(m)
}

// ByID looks up a model descriptor.
func (r *Registry) ByID(id string) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

// Models returns all registered models in registration order.
func (r *Registry) Models() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Model, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// ByProvider returns the provider's models sorted by tier.
func (r *Registry) ByProvider(p Provider) []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Model
	for _, id := range r.order {
		if m := r.byID[id]; m.Provider == p {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// Defaults returns the default model of each provider.
func (r *Registry) Defaults() []Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Model
	for _, id := range r.order {
		if m := r.byID[id]; m.Default {
			out = append(out, m)
		}
	}
	return out
}

// MostCapable returns the lowest-tier model for a provider.
func (r *Registry) MostCapable(p Provider) (Model, bool) {
	models := r.ByProvider(p)
	if len(models) == 0 {
		return Model{}, false
	}
	return models[0], true
}

// BestAvailable picks the most capable model among providers that have
// credentials configured, in fixed provider-priority order.
func (r *Registry) BestAvailable(available []Provider) (Model, bool) {
	set := make(map[Provider]bool, len(available))
	for _, p := range available {
		set[p] = true
	}
	for _, p := range providerPriority {
		if !set[p] {
			continue
		}
		if m, ok := r.MostCapable(p); ok {
			return m, true
		}
	}
	// Fallback: any model from an available provider.
	for _, m := range r.Models() {
		if set[m.Provider] {
			return m, true
		}
	}
	return Model{}, false
}
