// Package capability implements the capability model and manifest loader:
// immutable per-model descriptors loaded from JSON manifests at startup,
// plus the effective-rank scoring used for auto-mode listings.
package capability

import "strings"

// ProviderType tags which upstream a model belongs to.
type ProviderType string

const (
	OpenAI     ProviderType = "OPENAI"
	Google     ProviderType = "GOOGLE"
	XAI        ProviderType = "XAI"
	Azure      ProviderType = "AZURE"
	OpenRouter ProviderType = "OPENROUTER"
	DIAL       ProviderType = "DIAL"
	Custom     ProviderType = "CUSTOM"
)

// TemperatureConstraint models the three shapes a model's temperature
// handling can take: a fixed value, a discrete set, or a clamped range.
type TemperatureConstraint struct {
	Kind    string    `json:"kind"` // "fixed" | "discrete" | "range"
	Fixed   float64   `json:"fixed,omitempty"`
	Discrete []float64 `json:"discrete,omitempty"`
	Min     float64   `json:"min,omitempty"`
	Max     float64   `json:"max,omitempty"`
	Default float64   `json:"default,omitempty"`
}

// Apply resolves a requested temperature against the constraint, returning
// the effective value and whether it was adjusted (for metadata diagnostics).
func (tc *TemperatureConstraint) Apply(requested float64) (effective float64, adjusted bool) {
	if tc == nil {
		return requested, false
	}
	switch tc.Kind {
	case "fixed":
		return tc.Fixed, requested != tc.Fixed
	case "discrete":
		if len(tc.Discrete) == 0 {
			return requested, false
		}
		nearest := tc.Discrete[0]
		bestDiff := diff(requested, nearest)
		for _, d := range tc.Discrete[1:] {
			if nd := diff(requested, d); nd < bestDiff {
				nearest, bestDiff = d, nd
			}
		}
		return nearest, nearest != requested
	case "range":
		if requested < tc.Min {
			return tc.Min, true
		}
		if requested > tc.Max {
			return tc.Max, true
		}
		return requested, false
	default:
		return requested, false
	}
}

func diff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Capabilities is the immutable per-model descriptor.
type Capabilities struct {
	ModelName                string                 `json:"model_name"`
	Provider                 ProviderType           `json:"provider"`
	FriendlyName             string                 `json:"friendly_name"`
	ContextWindow            int                    `json:"context_window"`
	MaxOutputTokens          int                    `json:"max_output_tokens"`
	IntelligenceScore        int                    `json:"intelligence_score"`
	SupportsExtendedThinking bool                   `json:"supports_extended_thinking"`
	SupportsJSONMode         bool                   `json:"supports_json_mode"`
	SupportsFunctionCalling  bool                   `json:"supports_function_calling"`
	SupportsImages           bool                   `json:"supports_images"`
	SupportsTemperature      bool                   `json:"supports_temperature"`
	SupportsSystemPrompts    bool                   `json:"supports_system_prompts"`
	TemperatureConstraint    *TemperatureConstraint `json:"temperature_constraint,omitempty"`
	Aliases                  []string               `json:"aliases,omitempty"`
	Deployment               string                 `json:"deployment,omitempty"`
	UseOpenAIResponsesAPI    bool                   `json:"use_openai_responses_api,omitempty"`
	AllowCodeGeneration      bool                   `json:"allow_code_generation,omitempty"`
}

// NormalizeAliases lowercases every alias in place, per the loader contract.
func (c *Capabilities) NormalizeAliases() {
	for i, a := range c.Aliases {
		c.Aliases[i] = strings.ToLower(strings.TrimSpace(a))
	}
}

// HasAlias reports whether name (case-insensitive) matches an alias or the
// canonical model name.
func (c *Capabilities) HasAlias(name string) bool {
	name = strings.ToLower(name)
	if strings.ToLower(c.ModelName) == name {
		return true
	}
	for _, a := range c.Aliases {
		if a == name {
			return true
		}
	}
	return false
}

// Manifest is the on-disk JSON shape: {"_README": {...}, "models": [...]}.
type Manifest struct {
	README interface{}    `json:"_README,omitempty"`
	Models []Capabilities `json:"models"`
}
