package capabilities

import "gopkg.in/yaml.v3"

// PricingTier represents a pricing tier based on context window usage
type PricingTier struct {
	Threshold   *int               `yaml:"threshold" json:"threshold"`       // null = unlimited
	InputPrice  map[string]float64 `yaml:"input_price" json:"input_price"`   // modality -> price per million tokens
	OutputPrice map[string]float64 `yaml:"output_price" json:"output_price"` // modality -> price per million tokens
}

// ModelCapabilities represents all metadata for a continuation model
type ModelCapabilities struct {
	// Model identifier (set during YAML unmarshaling)
	ID string `yaml:"-" json:"id"`

	// Provider name (set when the provider file is loaded)
	Provider string `yaml:"-" json:"provider"`

	DisplayName string `yaml:"display_name" json:"display_name"`
	Description string `yaml:"description" json:"description"`

	// Limits
	ContextWindow    int `yaml:"context_window" json:"context_window"`
	MaxOutput        int `yaml:"max_output" json:"max_output"`
	DefaultMaxTokens int `yaml:"default_max_tokens" json:"default_max_tokens"`

	// SimulatedLatencyMS delays placeholder providers to mimic a remote model
	SimulatedLatencyMS int `yaml:"simulated_latency_ms" json:"simulated_latency_ms"`

	PricingTiers []PricingTier `yaml:"pricing_tiers" json:"pricing_tiers"`
}

// ClampMaxTokens applies the model's default and output ceiling to a requested budget
func (m *ModelCapabilities) ClampMaxTokens(requested int) int {
	if requested <= 0 {
		requested = m.DefaultMaxTokens
	}
	if m.MaxOutput > 0 && requested > m.MaxOutput {
		requested = m.MaxOutput
	}
	return requested
}

// ProviderCapabilities represents all models for a provider
type ProviderCapabilities struct {
	Provider string              `yaml:"provider" json:"provider"`
	Models   []ModelCapabilities `yaml:"-" json:"models"` // Ordered slice, populated by custom unmarshaler
}

// UnmarshalYAML implements custom YAML unmarshaling to preserve model order from YAML file
func (p *ProviderCapabilities) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "provider" {
			p.Provider = node.Content[i+1].Value
			break
		}
	}

	// Decode models into a map first to get the full data
	type modelsOnly struct {
		Models map[string]ModelCapabilities `yaml:"models"`
	}
	var m modelsOnly
	if err := node.Decode(&m); err != nil {
		return err
	}

	// Now extract model keys in YAML order and build the slice
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "models" {
			continue
		}
		modelsNode := node.Content[i+1]
		for j := 0; j+1 < len(modelsNode.Content); j += 2 {
			modelID := modelsNode.Content[j].Value
			if model, ok := m.Models[modelID]; ok {
				model.ID = modelID
				model.Provider = p.Provider
				p.Models = append(p.Models, model)
			}
		}
		break
	}

	return nil
}
