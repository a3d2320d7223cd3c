package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/restriction"
	"github.com/zenmcp/server-core/internal/retry"
	"github.com/zenmcp/server-core/internal/zlog"
)

// ChatCompletionsProvider serves every provider that speaks the OpenAI
// chat-completions wire shape: OpenAI itself, X.AI, OpenRouter, DIAL,
// custom OpenAI-compatible endpoints, and Azure's chat-completions path.
// Built on github.com/openai/openai-go/v3.
type ChatCompletionsProvider struct {
	Base

	client      *openai.Client
	logger      zlog.Logger
	retryPolicy retry.Policy
	limiter     *RateLimit

	// azureDeployment switches the wire model name to the capability's
	// Deployment field (Azure only).
	azureDeployment bool
}

// ChatCompletionsConfig bundles the parameters needed to stand up one
// chat-completions-shaped provider instance.
type ChatCompletionsConfig struct {
	Type            capability.ProviderType
	Caps            capability.Map
	APIKey          string
	BaseURL         string // empty uses the SDK default (api.openai.com)
	ExtraHeaders    map[string]string
	AzureDeployment bool // true for the Azure chat-completions path
	Logger          zlog.Logger
	RetryPolicy     retry.Policy
	RequestsPerMin  int
	Restrictor      *restriction.Policy
}

// NewChatCompletionsProvider wires an openai.Client against cfg.BaseURL
// (empty for stock OpenAI), carrying any extra headers the endpoint wants
// (DIAL's Api-Key header, Azure's api-key header) and an Azure deployment
// flag.
func NewChatCompletionsProvider(cfg ChatCompletionsConfig) *ChatCompletionsProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	for k, v := range cfg.ExtraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}
	client := openai.NewClient(opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = zlog.Noop{}
	}

	return &ChatCompletionsProvider{
		Base: Base{
			Type:       cfg.Type,
			Caps:       cfg.Caps,
			Restrictor: cfg.Restrictor,
		},
		client:          &client,
		logger:          logger,
		retryPolicy:     cfg.RetryPolicy,
		limiter:         NewRateLimit(cfg.RequestsPerMin, 10*time.Second),
		azureDeployment: cfg.AzureDeployment,
	}
}

// Generate resolves the alias, builds the chat-completions request
// honoring capability flags, runs it under the shared retry helper, and
// normalizes the response.
func (p *ChatCompletionsProvider) Generate(ctx context.Context, req GenerateRequest) (*ModelResponse, error) {
	canonical, err := p.Resolve(req.ModelName)
	if err != nil {
		return nil, err
	}
	caps, err := p.Capabilities(canonical)
	if err != nil {
		return nil, err
	}

	if len(req.Images) > 0 && !caps.SupportsImages {
		return nil, agenterrors.SchemaInvalidErr("images", fmt.Errorf("model %q does not support images", canonical))
	}

	params, err := p.buildParams(caps, req)
	if err != nil {
		return nil, err
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, agenterrors.UpstreamTimeoutErr(err)
	}

	modelLabel := canonical
	resp, err := retry.Do(ctx, p.retryPolicy, p.logger, string(p.Type), modelLabel,
		func(attemptCtx context.Context, attempt int) (*openai.ChatCompletion, retry.Outcome, error) {
			completion, callErr := p.client.Chat.Completions.New(attemptCtx, params)
			if callErr == nil {
				return completion, retry.Outcome{}, nil
			}
			return nil, classifyOpenAIError(callErr), callErr
		})
	if err != nil {
		return nil, err
	}

	result := p.convertResponse(resp, canonical, caps)
	attachTemperatureDiagnostic(result, caps, req.Temperature)
	return result, nil
}

func (p *ChatCompletionsProvider) buildParams(caps *capability.Capabilities, req GenerateRequest) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(caps.ModelName),
		Messages: []openai.ChatCompletionMessageParamUnion{},
	}

	if p.azureDeployment && caps.Deployment != "" {
		// Azure addresses the deployment, not the model name, on the wire.
		params.Model = openai.ChatModel(caps.Deployment)
	}

	if caps.SupportsSystemPrompts && req.SystemPrompt != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, turn := range req.History {
		params.Messages = append(params.Messages, historyMessage(turn))
	}

	userMsg, err := p.buildUserMessage(req.Prompt, req.Images)
	if err != nil {
		return params, err
	}
	params.Messages = append(params.Messages, userMsg)

	if caps.SupportsTemperature {
		effective, _ := ResolveTemperature(caps, req.Temperature)
		params.Temperature = openai.Float(effective)
	}
	// else: omit temperature/top_p entirely for reasoning models.

	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	if req.JSONMode && caps.SupportsJSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	if req.ThinkingMode != "" && caps.SupportsExtendedThinking {
		params.ReasoningEffort = openai.ReasoningEffort(mapThinkingModeToEffort(req.ThinkingMode))
	}

	if caps.SupportsFunctionCalling && len(req.Tools) > 0 {
		params.Tools = convertToolDefs(req.Tools)
	}

	return params, nil
}

func historyMessage(m Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case "system":
		return openai.SystemMessage(m.Content)
	case "assistant":
		return openai.AssistantMessage(m.Content)
	default:
		return openai.UserMessage(m.Content)
	}
}

// buildUserMessage folds images into a multi-part user message alongside
// the prompt text: absolute path -> read bytes -> base64 data URL with
// detected MIME.
func (p *ChatCompletionsProvider) buildUserMessage(prompt string, images []string) (openai.ChatCompletionMessageParamUnion, error) {
	if len(images) == 0 {
		return openai.UserMessage(prompt), nil
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
	}
	for _, path := range images {
		dataURL, err := encodeImageDataURL(path)
		if err != nil {
			return openai.ChatCompletionMessageParamUnion{}, agenterrors.SchemaInvalidErr("images", fmt.Errorf("reading image %q: %w", path, err))
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}))
	}
	return openai.UserMessage(parts), nil
}

func encodeImageDataURL(path string) (string, error) {
	data, mimeType, err := readImage(path)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return fmt.Sprintf("data:%s;base64,%s", mimeType, encoded), nil
}

func convertToolDefs(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, t := range tools {
		out[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(t.Parameters),
		})
	}
	return out
}

// mapThinkingModeToEffort translates the thinking_mode vocabulary into
// OpenAI's reasoning_effort values; "minimal" and "max" have no direct
// OpenAI analogue and are clamped to the nearest supported tier.
func mapThinkingModeToEffort(mode string) string {
	switch strings.ToLower(mode) {
	case "minimal", "low":
		return "low"
	case "medium":
		return "medium"
	case "high", "max":
		return "high"
	default:
		return "medium"
	}
}

func (p *ChatCompletionsProvider) convertResponse(completion *openai.ChatCompletion, canonical string, caps *capability.Capabilities) *ModelResponse {
	resp := &ModelResponse{
		ModelName:    canonical,
		FriendlyName: caps.FriendlyName,
		Provider:     p.Type,
		Metadata:     map[string]interface{}{},
	}
	if len(completion.Choices) == 0 {
		return resp
	}
	choice := completion.Choices[0]
	resp.Content = choice.Message.Content
	resp.FinishReason = string(choice.FinishReason)
	resp.Usage = TokenUsage{
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp
}

// classifyOpenAIError maps an openai-go error into the retry helper's
// Outcome, reading the HTTP status the SDK attaches to request-error
// types and any numeric Retry-After header.
func classifyOpenAIError(err error) retry.Outcome {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		outcome := retry.Outcome{
			Classification: retry.ClassifyHTTPStatus(status),
			HTTPStatus:     status,
			BodyExcerpt:    truncate(apiErr.Message, 200),
		}
		if apiErr.Response != nil {
			outcome.RetryAfterSeconds = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return outcome
	}
	// Connection-level failures (DNS, reset) carry no HTTP status; treat as
	// retryable.
	return retry.Outcome{Classification: retry.Retryable}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseRetryAfter parses a numeric Retry-After header value. A
// non-numeric value (an HTTP-date) is ignored; the caller falls back to
// computed backoff.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		return 0
	}
	return n
}
