package generation

import (
	"context"

	"plotline/internal/domain/models/story"
)

// ModelParams are the sampling settings forwarded to a provider
type ModelParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// GetMaxTokens returns MaxTokens or the given default
func (p ModelParams) GetMaxTokens(defaultValue int) int {
	if p.MaxTokens != nil && *p.MaxTokens > 0 {
		return *p.MaxTokens
	}
	return defaultValue
}

// Provider produces a continuation of a draft.
// Implementations are selected by model name.
type Provider interface {
	Name() string
	SupportsModel(model string) bool
	Continue(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)
}

// ProviderRequest is what a provider sees
type ProviderRequest struct {
	Model       string
	DraftText   string
	Instruction string
	Context     string
	Params      ModelParams
}

// ProviderResponse is the generated text plus the model actually used
type ProviderResponse struct {
	Text  string
	Model string
}

// Generator routes a request to the provider that supports its model
type Generator interface {
	Generate(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)
}

// Service is the generation endpoint.
// With PreviewOnly nothing is persisted; otherwise the continuation is
// appended to the story/branch as an ai snippet.
type Service interface {
	Continue(ctx context.Context, req *ContinueRequest) (*ContinueResponse, error)
}

// ContinueRequest is the DTO for POST /api/generate/continue
type ContinueRequest struct {
	DraftText   string      `json:"draft_text"`
	Instruction string      `json:"instruction"`
	Model       string      `json:"model"`
	Params      ModelParams `json:"params"`
	Context     string      `json:"context,omitempty"`
	PreviewOnly bool        `json:"preview_only"`
	Story       string      `json:"story,omitempty"`
	Branch      string      `json:"branch,omitempty"`
}

// ContinueResponse carries the continuation and, when persisted, the new snippet
type ContinueResponse struct {
	Continuation string         `json:"continuation"`
	Model        string         `json:"model"`
	Snippet      *story.Snippet `json:"snippet,omitempty"`
}
