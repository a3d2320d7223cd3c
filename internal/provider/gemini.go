package provider

import (
	"context"
	"errors"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/retry"
	"github.com/zenmcp/server-core/internal/zlog"
	"google.golang.org/api/option"
)

// GeminiProvider talks to the native Gemini endpoint via
// github.com/google/generative-ai-go: alias resolution, restriction
// checks, thinking-mode budget mapping, and the shared retry helper.
type GeminiProvider struct {
	Base

	client      *genai.Client
	logger      zlog.Logger
	retryPolicy retry.Policy
	limiter     *RateLimit
}

// NewGeminiProvider dials the Gemini client. endpoint, when non-empty,
// overrides the default API host (GEMINI_API_URL).
func NewGeminiProvider(ctx context.Context, apiKey, endpoint string, caps capability.Map, logger zlog.Logger, retryPolicy retry.Policy, requestsPerMin int) (*GeminiProvider, error) {
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, agenterrors.New(agenterrors.ConfigInvalid, "failed to create Gemini client", err)
	}
	if logger == nil {
		logger = zlog.Noop{}
	}
	return &GeminiProvider{
		Base:        Base{Type: capability.Google, Caps: caps},
		client:      client,
		logger:      logger,
		retryPolicy: retryPolicy,
		limiter:     NewRateLimit(requestsPerMin, 10*time.Second),
	}, nil
}

// Close releases the underlying Gemini client.
func (p *GeminiProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Generate builds a contents/parts request plus
// generationConfig.thinkingConfig.thinkingBudget derived from the
// thinking-mode keyword mapping in ThinkingBudget.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*ModelResponse, error) {
	canonical, err := p.Resolve(req.ModelName)
	if err != nil {
		return nil, err
	}
	caps, err := p.Capabilities(canonical)
	if err != nil {
		return nil, err
	}
	if len(req.Images) > 0 && !caps.SupportsImages {
		return nil, agenterrors.SchemaInvalidErr("images", errors.New("model does not support images"))
	}

	model := p.client.GenerativeModel(caps.ModelName)
	p.configureModel(model, caps, req)

	parts := p.convertParts(req)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, agenterrors.UpstreamTimeoutErr(err)
	}

	resp, err := retry.Do(ctx, p.retryPolicy, p.logger, string(p.Type), canonical,
		func(attemptCtx context.Context, attempt int) (*genai.GenerateContentResponse, retry.Outcome, error) {
			r, callErr := model.GenerateContent(attemptCtx, parts...)
			if callErr == nil {
				return r, retry.Outcome{}, nil
			}
			return nil, classifyGeminiError(callErr), callErr
		})
	if err != nil {
		return nil, err
	}

	result := p.convertResponse(resp, canonical, caps)
	attachTemperatureDiagnostic(result, caps, req.Temperature)
	return result, nil
}

func (p *GeminiProvider) configureModel(model *genai.GenerativeModel, caps *capability.Capabilities, req GenerateRequest) {
	if caps.SupportsSystemPrompts && req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}

	if caps.SupportsTemperature {
		effective, _ := ResolveTemperature(caps, req.Temperature)
		temp := float32(effective)
		model.SetTemperature(temp)
	}

	if req.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxOutputTokens))
	}

	if req.JSONMode && caps.SupportsJSONMode {
		model.ResponseMIMEType = "application/json"
	}

	if caps.SupportsExtendedThinking && req.ThinkingMode != "" {
		budget := int32(ThinkingBudget(req.ThinkingMode))
		model.GenerationConfig.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: budget}
	}
}

func (p *GeminiProvider) convertParts(req GenerateRequest) []genai.Part {
	parts := make([]genai.Part, 0, len(req.History)+len(req.Images)+1)
	for _, turn := range req.History {
		if turn.Role == "user" || turn.Role == "assistant" {
			parts = append(parts, genai.Text(turn.Content))
		}
	}
	parts = append(parts, genai.Text(req.Prompt))
	for _, imgPath := range req.Images {
		if data, mimeType, err := readImage(imgPath); err == nil {
			parts = append(parts, genai.ImageData(mimeType, data))
		}
	}
	return parts
}

func (p *GeminiProvider) convertResponse(resp *genai.GenerateContentResponse, canonical string, caps *capability.Capabilities) *ModelResponse {
	result := &ModelResponse{
		ModelName:    canonical,
		FriendlyName: caps.FriendlyName,
		Provider:     p.Type,
		Metadata:     map[string]interface{}{},
	}
	if len(resp.Candidates) > 0 {
		candidate := resp.Candidates[0]
		for _, part := range candidate.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				result.Content += string(txt)
			}
		}
		if candidate.FinishReason != genai.FinishReasonUnspecified {
			result.FinishReason = candidate.FinishReason.String()
		}
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
		if resp.UsageMetadata.ThoughtsTokenCount > 0 {
			result.Usage.ReasoningTokens = int(resp.UsageMetadata.ThoughtsTokenCount)
			result.Metadata["reasoning_tokens"] = result.Usage.ReasoningTokens
		}
	}
	return result
}

// classifyGeminiError maps a genai error into the retry helper's Outcome.
// The SDK surfaces upstream HTTP failures as *googleapi.Error; anything
// else (context deadline, connection reset) is treated as retryable.
func classifyGeminiError(err error) retry.Outcome {
	if err == context.DeadlineExceeded {
		return retry.Outcome{Classification: retry.Timeout}
	}
	if status, ok := extractGoogleAPIStatus(err); ok {
		return retry.Outcome{
			Classification: retry.ClassifyHTTPStatus(status),
			HTTPStatus:     status,
			BodyExcerpt:    truncate(err.Error(), 200),
		}
	}
	return retry.Outcome{Classification: retry.Retryable}
}
