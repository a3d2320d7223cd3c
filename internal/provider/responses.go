package provider

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/retry"
	"github.com/zenmcp/server-core/internal/zlog"
)

// ResponsesProvider speaks OpenAI's Responses API, used for o3-pro,
// gpt-5-codex, gpt-5-pro, and any model whose capability sets
// use_openai_responses_api. It shares the Base/retry/rate-limit plumbing
// with ChatCompletionsProvider but diverges in request envelope
// (input/content instead of messages) and in reasoning.effort placement.
type ResponsesProvider struct {
	Base

	client      *openai.Client
	logger      zlog.Logger
	retryPolicy retry.Policy
	limiter     *RateLimit
}

// NewResponsesProvider mirrors NewChatCompletionsProvider's construction
// but always targets OpenAI's endpoint (the Responses API has no
// Azure/OpenRouter/DIAL equivalent in this server's provider set).
func NewResponsesProvider(apiKey string, caps capability.Map, logger zlog.Logger, retryPolicy retry.Policy, requestsPerMin int) *ResponsesProvider {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	if logger == nil {
		logger = zlog.Noop{}
	}
	return &ResponsesProvider{
		Base:        Base{Type: capability.OpenAI, Caps: caps},
		client:      &client,
		logger:      logger,
		retryPolicy: retryPolicy,
		limiter:     NewRateLimit(requestsPerMin, 10*time.Second),
	}
}

// Generate builds a Responses-API request and normalizes its output into
// the same ModelResponse shape chat-completions returns.
func (p *ResponsesProvider) Generate(ctx context.Context, req GenerateRequest) (*ModelResponse, error) {
	canonical, err := p.Resolve(req.ModelName)
	if err != nil {
		return nil, err
	}
	caps, err := p.Capabilities(canonical)
	if err != nil {
		return nil, err
	}

	params := responses.ResponseNewParams{
		Model: openai.ResponsesModel(caps.ModelName),
	}

	inputItems := []responses.ResponseInputItemUnionParam{}
	if caps.SupportsSystemPrompts && req.SystemPrompt != "" {
		inputItems = append(inputItems, responses.ResponseInputItemParamOfMessage(
			responses.ResponseInputMessageContentListParam{responses.ResponseInputContentParamOfInputText(req.SystemPrompt)},
			responses.EasyInputMessageRoleSystem,
		))
	}
	for _, turn := range req.History {
		role := responses.EasyInputMessageRoleUser
		if turn.Role == "assistant" {
			role = responses.EasyInputMessageRoleAssistant
		}
		inputItems = append(inputItems, responses.ResponseInputItemParamOfMessage(
			responses.ResponseInputMessageContentListParam{responses.ResponseInputContentParamOfInputText(turn.Content)},
			role,
		))
	}
	inputItems = append(inputItems, responses.ResponseInputItemParamOfMessage(
		responses.ResponseInputMessageContentListParam{responses.ResponseInputContentParamOfInputText(req.Prompt)},
		responses.EasyInputMessageRoleUser,
	))
	params.Input = responses.ResponseNewParamsInputUnion{OfInputItemList: inputItems}

	if req.ThinkingMode != "" {
		params.Reasoning = openai.ReasoningParam{
			Effort: openai.ReasoningEffort(mapThinkingModeToEffort(req.ThinkingMode)),
		}
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, agenterrors.UpstreamTimeoutErr(err)
	}

	resp, err := retry.Do(ctx, p.retryPolicy, p.logger, string(p.Type), canonical,
		func(attemptCtx context.Context, attempt int) (*responses.Response, retry.Outcome, error) {
			r, callErr := p.client.Responses.New(attemptCtx, params)
			if callErr == nil {
				return r, retry.Outcome{}, nil
			}
			return nil, classifyOpenAIError(callErr), callErr
		})
	if err != nil {
		return nil, err
	}

	return p.convertResponse(resp, canonical, caps), nil
}

// convertResponse concatenates output[*].content[*].text and folds
// reasoning-token usage into Metadata.
func (p *ResponsesProvider) convertResponse(resp *responses.Response, canonical string, caps *capability.Capabilities) *ModelResponse {
	result := &ModelResponse{
		ModelName:    canonical,
		FriendlyName: caps.FriendlyName,
		Provider:     p.Type,
		Metadata:     map[string]interface{}{},
	}

	for _, item := range resp.Output {
		msg := item.AsMessage()
		for _, c := range msg.Content {
			if text := c.AsOutputText(); text.Text != "" {
				result.Content += text.Text
			}
		}
	}

	result.Usage = TokenUsage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	if resp.Usage.OutputTokensDetails.ReasoningTokens > 0 {
		result.Usage.ReasoningTokens = int(resp.Usage.OutputTokensDetails.ReasoningTokens)
		result.Metadata["reasoning_tokens"] = result.Usage.ReasoningTokens
	}
	if resp.Status != "" {
		result.FinishReason = string(resp.Status)
	}
	return result
}
