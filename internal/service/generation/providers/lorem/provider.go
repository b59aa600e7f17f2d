package lorem

import (
	"context"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"

	"plotline/internal/domain/services/generation"
)

// Provider is a mock continuation provider that generates lorem ipsum text.
// Used for development and tests without requiring real API keys.
type Provider struct {
	generator *loremgen.Lorem
	latency   func(model string) time.Duration
}

// NewProvider creates a lorem provider. latency reports the simulated
// delay for a model; nil means no delay.
func NewProvider(latency func(model string) time.Duration) *Provider {
	if latency == nil {
		latency = func(string) time.Duration { return 0 }
	}
	return &Provider{
		generator: loremgen.New(),
		latency:   latency,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "lorem"
}

// SupportsModel returns true if the model name starts with "lorem-".
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// Continue produces exactly MaxTokens words (one word per token).
func (p *Provider) Continue(ctx context.Context, req *generation.ProviderRequest) (*generation.ProviderResponse, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by lorem provider", req.Model)
	}

	if delay := p.latency(req.Model); delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return &generation.ProviderResponse{
		Text:  p.generateWords(req.Params.GetMaxTokens(120)),
		Model: req.Model,
	}, nil
}

// generateWords returns lorem text trimmed to exactly n words.
func (p *Provider) generateWords(n int) string {
	if n <= 0 {
		return ""
	}

	words := make([]string, 0, n+15)
	for len(words) < n {
		words = append(words, strings.Fields(p.generator.Sentence(5, 15))...)
	}
	words = words[:n]

	last := strings.TrimRight(words[n-1], ".,;:!?")
	if last == "" {
		last = p.generator.Word(3, 8)
	}
	words[n-1] = last + "."
	return strings.Join(words, " ")
}
