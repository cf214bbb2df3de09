package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Agent dispatches Requests to the Provider registered for the request's
// model prefix. A Request's Model field takes the form
// "provider:model_id"; the Agent strips the prefix before handing the
// Request to the matched Provider, which only ever sees the bare
// model_id.
type Agent struct {
	mu        sync.RWMutex
	providers map[string]Provider
	log       *slog.Logger
}

// New constructs an empty Agent. Providers are registered with Connect.
func New(log *slog.Logger) *Agent {
	if log == nil {
		log = slog.Default()
	}
	return &Agent{providers: make(map[string]Provider), log: log}
}

// Connect registers a Provider under its own Name(). A later Connect call
// for the same name replaces the previous registration.
func (a *Agent) Connect(p Provider) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.providers[p.Name()] = p
	a.log.Info("agent: provider connected", "provider", p.Name())
}

// Disconnect removes a previously registered provider, if any.
func (a *Agent) Disconnect(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.providers, name)
	a.log.Info("agent: provider disconnected", "provider", name)
}

// splitModel splits "provider:model_id" into its two parts.
func splitModel(model string) (provider, modelID string, err error) {
	idx := strings.IndexByte(model, ':')
	if idx < 0 {
		return "", "", &InvalidModelIDError{Model: model}
	}
	return model[:idx], model[idx+1:], nil
}

func (a *Agent) resolve(providerName string) (Provider, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.providers[strings.ToLower(providerName)]
	if !ok {
		return nil, &ProviderNotConfiguredError{Provider: providerName}
	}
	return p, nil
}

// Completion dispatches req to the provider named by req.Model's prefix.
func (a *Agent) Completion(ctx context.Context, req Request) (Response, error) {
	providerName, modelID, err := splitModel(req.Model)
	if err != nil {
		return Response{}, err
	}
	p, err := a.resolve(providerName)
	if err != nil {
		return Response{}, err
	}
	inner := req
	inner.Model = modelID
	resp, err := p.Completion(ctx, inner)
	if err != nil {
		return Response{}, fmt.Errorf("agent: completion via %s: %w", providerName, err)
	}
	return resp, nil
}

// StreamCompletion dispatches req to the provider named by req.Model's
// prefix, invoking cb for each incremental Response.
func (a *Agent) StreamCompletion(ctx context.Context, req Request, cb StreamCallback) error {
	providerName, modelID, err := splitModel(req.Model)
	if err != nil {
		return err
	}
	p, err := a.resolve(providerName)
	if err != nil {
		return err
	}
	inner := req
	inner.Model = modelID
	if err := p.StreamCompletion(ctx, inner, cb); err != nil {
		return fmt.Errorf("agent: stream completion via %s: %w", providerName, err)
	}
	return nil
}

// ListModels aggregates ListModels across every connected provider,
// prefixing each Model's ID with "<provider>:" so the result round-trips
// directly as a Request.Model value. A single provider's failure is
// logged and skipped rather than failing the whole aggregation.
func (a *Agent) ListModels(ctx context.Context) ([]Model, error) {
	a.mu.RLock()
	providers := make([]Provider, 0, len(a.providers))
	for _, p := range a.providers {
		providers = append(providers, p)
	}
	a.mu.RUnlock()

	var all []Model
	for _, p := range providers {
		models, err := p.ListModels(ctx)
		if err != nil {
			a.log.Warn("agent: list_models failed", "provider", p.Name(), "error", err)
			continue
		}
		for _, m := range models {
			m.ID = fmt.Sprintf("%s:%s", p.Name(), m.ID)
			all = append(all, m)
		}
	}
	return all, nil
}

// Check probes every connected provider and returns a map of provider name
// to the error reported by Check, if any (a nil value means healthy).
func (a *Agent) Check(ctx context.Context) map[string]error {
	a.mu.RLock()
	providers := make([]Provider, 0, len(a.providers))
	for _, p := range a.providers {
		providers = append(providers, p)
	}
	a.mu.RUnlock()

	results := make(map[string]error, len(providers))
	for _, p := range providers {
		results[p.Name()] = p.Check(ctx)
	}
	return results
}
