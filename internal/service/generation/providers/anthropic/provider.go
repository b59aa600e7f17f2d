package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"plotline/internal/domain/services/generation"
)

const systemPrompt = "You are a co-author continuing a story draft. " +
	"Continue seamlessly from where the draft stops, matching its voice and tense. " +
	"Reply with the continuation text only, without commentary or headings."

// Provider continues drafts with Anthropic (Claude) models.
type Provider struct {
	client *anthropic.Client
}

// NewProvider creates a new Anthropic provider with the given API key.
func NewProvider(apiKey string, opts ...option.RequestOption) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &Provider{
		client: &client,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "anthropic"
}

// SupportsModel returns true for "claude-" models.
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// Continue asks Claude for the next passage of the draft.
func (p *Provider) Continue(ctx context.Context, req *generation.ProviderRequest) (*generation.ProviderResponse, error) {
	if !p.SupportsModel(req.Model) {
		return nil, fmt.Errorf("model '%s' is not supported by Anthropic provider", req.Model)
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(req)))},
		MaxTokens: int64(req.Params.GetMaxTokens(1024)),
		System: []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: buildSystem(req.Context),
			},
		},
	}

	if req.Params.Temperature != nil {
		apiParams.Temperature = anthropic.Float(*req.Params.Temperature)
	}

	message, err := p.client.Messages.New(ctx, apiParams)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var sb strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			sb.WriteString(content.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, fmt.Errorf("anthropic returned no text (stop reason %s)", message.StopReason)
	}

	return &generation.ProviderResponse{
		Text:  text,
		Model: string(message.Model),
	}, nil
}

func buildSystem(storyContext string) string {
	if strings.TrimSpace(storyContext) == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nBackground for this story:\n" + storyContext
}

// buildPrompt places the draft first and the author's instruction last.
func buildPrompt(req *generation.ProviderRequest) string {
	var sb strings.Builder
	if req.DraftText == "" {
		sb.WriteString("The draft is empty. Write its opening passage.")
	} else {
		sb.WriteString("<draft>\n")
		sb.WriteString(req.DraftText)
		sb.WriteString("\n</draft>")
	}
	if instruction := strings.TrimSpace(req.Instruction); instruction != "" {
		sb.WriteString("\n\nInstruction for the next passage: ")
		sb.WriteString(instruction)
	}
	return sb.String()
}
