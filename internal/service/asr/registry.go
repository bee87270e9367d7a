package asr

import (
	"fmt"
	"sort"

	"vibe-transcriber-service/internal/apperr"
)

// Registry is the closed set of configured providers, validated at
// construction.
type Registry struct {
	defaultName string
	byName      map[string][]Provider
}

// NewRegistry indexes providers by name. The first provider registered under
// a name is that name's default model.
func NewRegistry(defaultName string, providers ...Provider) (*Registry, error) {
	r := &Registry{defaultName: defaultName, byName: make(map[string][]Provider)}
	for _, p := range providers {
		if p == nil {
			return nil, apperr.Errorf(apperr.KindConfiguration, "asr.registry", "nil provider")
		}
		for _, existing := range r.byName[p.Name()] {
			if existing.Model() == p.Model() {
				return nil, apperr.Errorf(apperr.KindConfiguration, "asr.registry",
					"duplicate provider %s/%s", p.Name(), p.Model())
			}
		}
		r.byName[p.Name()] = append(r.byName[p.Name()], p)
	}
	if _, ok := r.byName[defaultName]; !ok {
		return nil, apperr.Errorf(apperr.KindConfiguration, "asr.registry",
			"default provider %q is not registered", defaultName)
	}
	return r, nil
}

// Default returns the default provider's default model.
func (r *Registry) Default() Provider {
	return r.byName[r.defaultName][0]
}

// Select resolves a provider/model pair. An empty name picks the default
// provider and an empty model picks that provider's default model. Unknown
// pairs are configuration errors.
func (r *Registry) Select(name, model string) (Provider, error) {
	if name == "" {
		name = r.defaultName
	}
	candidates, ok := r.byName[name]
	if !ok {
		return nil, apperr.Errorf(apperr.KindConfiguration, "asr.select",
			"unknown provider %q (available: %v)", name, r.Names())
	}
	if model == "" {
		return candidates[0], nil
	}
	for _, p := range candidates {
		if p.Model() == model {
			return p, nil
		}
	}
	return nil, apperr.Errorf(apperr.KindConfiguration, "asr.select",
		"provider %q has no model %q", name, model)
}

// Names lists the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// String renders a provider as "name/model".
func String(p Provider) string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s/%s", p.Name(), p.Model())
}
