package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"plotline/internal/capabilities"
	"plotline/internal/domain"
	domaingen "plotline/internal/domain/services/generation"
)

// ProviderRegistry routes a model to the provider that serves it.
// Models must be listed in the capability registry.
type ProviderRegistry struct {
	capabilities *capabilities.Registry
	providers    map[string]domaingen.Provider
	mu           sync.RWMutex
	logger       *slog.Logger
}

// NewProviderRegistry creates an empty registry backed by the model catalogue.
func NewProviderRegistry(caps *capabilities.Registry, logger *slog.Logger) *ProviderRegistry {
	return &ProviderRegistry{
		capabilities: caps,
		providers:    make(map[string]domaingen.Provider),
		logger:       logger,
	}
}

// Register adds a provider under its Name()
func (r *ProviderRegistry) Register(p domaingen.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// LatencyFor reports a catalogue model's simulated latency
func (r *ProviderRegistry) LatencyFor(model string) time.Duration {
	caps, err := r.capabilities.FindModel(model)
	if err != nil {
		return 0
	}
	return time.Duration(caps.SimulatedLatencyMS) * time.Millisecond
}

// Generate implements domaingen.Generator
func (r *ProviderRegistry) Generate(ctx context.Context, req *domaingen.ProviderRequest) (*domaingen.ProviderResponse, error) {
	caps, err := r.capabilities.FindModel(req.Model)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	provider, ok := r.providers[caps.Provider]
	r.mu.RUnlock()
	if !ok || !provider.SupportsModel(req.Model) {
		return nil, fmt.Errorf("%w: model %q is not available on this server", domain.ErrValidation, req.Model)
	}

	// Clamp to the model's output ceiling
	providerReq := *req
	maxTokens := caps.ClampMaxTokens(req.Params.GetMaxTokens(0))
	providerReq.Params.MaxTokens = &maxTokens

	start := time.Now()
	resp, err := provider.Continue(ctx, &providerReq)
	if err != nil {
		r.logger.Error("generation failed",
			"provider", caps.Provider,
			"model", req.Model,
			"error", err,
		)
		return nil, fmt.Errorf("generate with %s: %w", caps.Provider, err)
	}

	r.logger.Debug("generation completed",
		"provider", caps.Provider,
		"model", resp.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"chars", len(resp.Text),
	)
	return resp, nil
}

// Available lists catalogue models whose provider is registered and serves them
func (r *ProviderRegistry) Available() []capabilities.ModelCapabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []capabilities.ModelCapabilities
	for _, m := range r.capabilities.Models() {
		if p, ok := r.providers[m.Provider]; ok && p.SupportsModel(m.ID) {
			out = append(out, m)
		}
	}
	return out
}
