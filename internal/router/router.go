// Package router maps model identifiers to the adapter that serves them.
// The table is built once at startup from each adapter's advertised
// profiles and is read-only afterwards.
package router

import (
	"fmt"
	"sort"

	"github.com/agentlab/inference-gateway/internal/domain"
	"github.com/agentlab/inference-gateway/internal/provider"
)

type Router struct {
	adapters map[string]provider.Adapter    // by provider ID
	models   map[string]provider.Adapter    // by model ID
	profiles map[string]domain.ModelProfile // by model ID
}

func New(adapters ...provider.Adapter) *Router {
	r := &Router{
		adapters: make(map[string]provider.Adapter, len(adapters)),
		models:   make(map[string]provider.Adapter),
		profiles: make(map[string]domain.ModelProfile),
	}

	for _, a := range adapters {
		r.adapters[a.ID()] = a
		for _, profile := range a.Models() {
			r.models[profile.ID] = a
			r.profiles[profile.ID] = profile
		}
	}

	return r
}

// SelectAdapter returns the adapter serving model, or a wrapped
// domain.ErrUnsupportedModel when no registered adapter advertises it.
func (r *Router) SelectAdapter(model string) (provider.Adapter, error) {
	a, ok := r.models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedModel, model)
	}
	return a, nil
}

// Profile returns the static metadata for model.
func (r *Router) Profile(model string) (domain.ModelProfile, error) {
	p, ok := r.profiles[model]
	if !ok {
		return domain.ModelProfile{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedModel, model)
	}
	return p, nil
}

// Models lists every routable model profile, sorted by ID for stable output.
func (r *Router) Models() []domain.ModelProfile {
	out := make([]domain.ModelProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Adapter returns the adapter registered under a provider ID.
func (r *Router) Adapter(providerID string) (provider.Adapter, bool) {
	a, ok := r.adapters[providerID]
	return a, ok
}

// Providers lists registered provider IDs, sorted.
func (r *Router) Providers() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
