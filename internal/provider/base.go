// Package provider defines the contract every upstream LLM provider
// satisfies and its three concrete wire shapes: OpenAI-style
// chat-completions, the OpenAI Responses API, and native Gemini. All
// providers normalize their results into a single ModelResponse so callers
// never touch an SDK type.
package provider

import (
	"context"
	"math"

	"github.com/zenmcp/server-core/internal/capability"
)

// Message is a single chat turn handed to a provider. Kept deliberately
// small so callers don't need to import any provider SDK type.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
	Images  []string // absolute file paths, only meaningful for user messages
}

// TokenUsage carries the upstream token accounting. ReasoningTokens is
// only populated by providers that report it separately.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	ReasoningTokens  int
	TotalTokens      int
}

// ToolCall is a normalized function-call request emitted by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ModelResponse is the normalized result every provider returns.
type ModelResponse struct {
	Content      string
	Usage        TokenUsage
	ModelName    string
	FriendlyName string
	Provider     capability.ProviderType
	FinishReason string
	ToolCalls    []ToolCall
	Metadata     map[string]interface{}
}

// GenerateRequest bundles everything a single generation call accepts.
type GenerateRequest struct {
	Prompt          string
	ModelName       string // canonical, already resolved
	SystemPrompt    string
	Temperature     *float64
	MaxOutputTokens int
	Images          []string
	Tools           []ToolDefinition
	JSONMode        bool
	ThinkingMode    string // "minimal|low|medium|high|max", used by Gemini + reasoning_effort
	History         []Message
}

// ToolDefinition is a function the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Provider is the contract every concrete provider satisfies.
type Provider interface {
	ProviderType() capability.ProviderType
	ListCapabilities() capability.Map
	Resolve(aliasOrCanonical string) (string, error)
	Capabilities(name string) (*capability.Capabilities, error)
	Validate(name string) bool
	Generate(ctx context.Context, req GenerateRequest) (*ModelResponse, error)
	CountTokens(text string, model string) int
}

// DefaultCountTokens estimates ceil(len(text)/4). Providers with an
// accurate tokenizer override this by not calling it.
func DefaultCountTokens(text string) int {
	return int(math.Ceil(float64(len(text)) / 4.0))
}

// ThinkingBudget maps a thinking-mode keyword to a Gemini-style token
// budget.
func ThinkingBudget(mode string) int {
	switch mode {
	case "minimal":
		return 128
	case "low":
		return 2048
	case "medium":
		return 8192
	case "high":
		return 16384
	case "max":
		return 32768
	default:
		return 0
	}
}

// ResolveTemperature applies a capability's TemperatureConstraint to a
// requested temperature, returning the effective value and whether it was
// adjusted.
func ResolveTemperature(caps *capability.Capabilities, requested *float64) (effective float64, adjusted bool) {
	var r float64
	if requested != nil {
		r = *requested
	}
	if !caps.SupportsTemperature {
		return 0, false
	}
	return caps.TemperatureConstraint.Apply(r)
}

// attachTemperatureDiagnostic records on the response that the requested
// temperature was replaced or clamped by the model's constraint.
func attachTemperatureDiagnostic(resp *ModelResponse, caps *capability.Capabilities, requested *float64) {
	if resp == nil || !caps.SupportsTemperature || requested == nil {
		return
	}
	effective, adjusted := ResolveTemperature(caps, requested)
	if !adjusted {
		return
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]interface{}{}
	}
	resp.Metadata["temperature_requested"] = *requested
	resp.Metadata["temperature_effective"] = effective
}
