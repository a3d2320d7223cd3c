package provider

import (
	"context"

	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/restriction"
	"github.com/zenmcp/server-core/internal/retry"
	"github.com/zenmcp/server-core/internal/zlog"
)

// OpenAIProvider is the single OPENAI registry entry. OpenAI is the only
// provider type that speaks both wire shapes from one API key, so this
// wrapper resolves a model once against the shared capability map and then
// routes to whichever concrete shape the capability's
// use_openai_responses_api flag declares.
type OpenAIProvider struct {
	Base

	chat      *ChatCompletionsProvider
	responses *ResponsesProvider
}

// NewOpenAIProvider builds both concrete shapes against the same API key
// and capability map, so alias resolution and the restriction check give
// the same answer regardless of which shape ultimately serves a request.
func NewOpenAIProvider(apiKey string, caps capability.Map, restrictor *restriction.Policy, logger zlog.Logger, retryPolicy retry.Policy, requestsPerMin int) *OpenAIProvider {
	chat := NewChatCompletionsProvider(ChatCompletionsConfig{
		Type:           capability.OpenAI,
		Caps:           caps,
		APIKey:         apiKey,
		Logger:         logger,
		RetryPolicy:    retryPolicy,
		RequestsPerMin: requestsPerMin,
		Restrictor:     restrictor,
	})
	responses := NewResponsesProvider(apiKey, caps, logger, retryPolicy, requestsPerMin)
	responses.Restrictor = restrictor

	return &OpenAIProvider{
		Base:      Base{Type: capability.OpenAI, Caps: caps, Restrictor: restrictor},
		chat:      chat,
		responses: responses,
	}
}

// Generate routes to the Responses API for models that declare it, and to
// chat-completions otherwise. Resolution/restriction already happened in
// Base.Capabilities via the registry's Validate call, but Generate
// re-resolves defensively since it may be called directly in tests.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*ModelResponse, error) {
	canonical, err := p.Resolve(req.ModelName)
	if err != nil {
		return nil, err
	}
	caps, err := p.Capabilities(canonical)
	if err != nil {
		return nil, err
	}
	req.ModelName = canonical
	if caps.UseOpenAIResponsesAPI {
		return p.responses.Generate(ctx, req)
	}
	return p.chat.Generate(ctx, req)
}

func (p *OpenAIProvider) CountTokens(text string, model string) int {
	return p.chat.CountTokens(text, model)
}
