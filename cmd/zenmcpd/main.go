// Command zenmcpd is the Zen MCP Server process entrypoint: it loads
// configuration and model-capability manifests, wires the provider
// registry, conversation memory, workflow engine, and tool dispatcher,
// and serves the resulting tool catalog over stdio via
// github.com/mark3labs/mcp-go.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/config"
	"github.com/zenmcp/server-core/internal/dispatch"
	"github.com/zenmcp/server-core/internal/memory"
	"github.com/zenmcp/server-core/internal/provider"
	"github.com/zenmcp/server-core/internal/registry"
	"github.com/zenmcp/server-core/internal/restriction"
	"github.com/zenmcp/server-core/internal/retry"
	"github.com/zenmcp/server-core/internal/tool"
	"github.com/zenmcp/server-core/internal/workflow"
	"github.com/zenmcp/server-core/internal/zlog"
)

const (
	serverName      = "zen-mcp-server"
	serverVersion   = "0.1.0"
	manifestDir     = "manifests"
	gcInterval      = 10 * time.Minute
	requestsPerMin  = 60
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "zenmcpd: fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := zlog.New(zlog.ParseLevel(cfg.LogLevel), os.Stderr)
	ctx := context.Background()

	manifests, err := loadManifests(cfg)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		return fmt.Errorf("no provider is configured: set at least one *_API_KEY")
	}

	restrictionRaw := make(map[capability.ProviderType]string, len(manifests))
	for pt := range manifests {
		restrictionRaw[pt] = cfg.AllowedModelsRaw(string(pt))
	}
	restrictor := restriction.New(logger, restrictionRaw)
	for pt, caps := range manifests {
		restrictor.WarnUnknownTokens(ctx, pt, caps)
	}

	retryPolicy := retry.DefaultPolicy()

	factories, err := buildFactories(ctx, cfg, logger, retryPolicy, manifests, restrictor)
	if err != nil {
		return err
	}

	reg := registry.New(logger, factories)
	store := memory.New(cfg.ConversationTTL, cfg.MaxTurns, 1000, logger)

	gcCtx, cancelGC := context.WithCancel(ctx)
	defer cancelGC()
	store.RunGC(gcCtx, gcInterval)

	engine := workflow.New(store, reg.Generate, logger)

	deps := buildDeps(cfg, reg, store, engine)

	disp := dispatch.New(logger, cfg.DisabledTools)
	for _, t := range tool.All(deps) {
		disp.Register(t)
	}

	mcpServer := server.NewMCPServer(serverName, serverVersion)
	for _, descriptor := range disp.ListTools() {
		registerTool(mcpServer, disp, descriptor, logger)
	}

	logger.Info(ctx, "zenmcpd ready", zlog.F("tools", len(disp.ListTools())), zlog.F("providers", len(factories)))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info(ctx, "shutting down")
		cancelGC()
		os.Exit(0)
	}()

	return server.ServeStdio(mcpServer)
}

// loadManifests loads one capability manifest per provider type that has
// an API key (or, for CUSTOM, an endpoint URL) configured, honoring
// *_MODELS_CONFIG_PATH overrides. A provider type with no credential
// configured is simply omitted; the registry treats an omitted type as
// "not configured" and skips it in the priority walk.
func loadManifests(cfg *config.Config) (map[capability.ProviderType]capability.Map, error) {
	out := make(map[capability.ProviderType]capability.Map, len(config.Providers))

	order := []struct {
		env string
		pt  capability.ProviderType
	}{
		{"GOOGLE", capability.Google},
		{"OPENAI", capability.OpenAI},
		{"XAI", capability.XAI},
		{"AZURE", capability.Azure},
		{"OPENROUTER", capability.OpenRouter},
		{"DIAL", capability.DIAL},
		{"CUSTOM", capability.Custom},
	}

	for _, entry := range order {
		apiKey := cfg.APIKey(entry.env)
		if apiKey == "" && entry.env != "CUSTOM" {
			continue
		}
		if entry.env == "CUSTOM" && cfg.CustomAPIURL == "" {
			continue
		}
		if entry.env == "AZURE" && cfg.AzureEndpoint == "" {
			continue
		}

		path := cfg.ManifestPath(entry.env, manifestDir)
		models, err := capability.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s manifest: %w", entry.env, err)
		}
		if entry.env == "CUSTOM" {
			models = applyCustomModelName(models, cfg.CustomModelName)
		}
		out[entry.pt] = capability.Build(models)
	}

	// CUSTOM refuses any model the OpenRouter manifest declares, so such
	// requests fall through to OPENROUTER.
	if customCaps, ok := out[capability.Custom]; ok {
		if openrouterCaps, ok := out[capability.OpenRouter]; ok {
			filtered := make(capability.Map, len(customCaps))
			for name, c := range customCaps {
				if _, claimed := openrouterCaps[name]; claimed {
					continue
				}
				filtered[name] = c
			}
			out[capability.Custom] = filtered
		}
	}

	return out, nil
}

// applyCustomModelName renames the custom manifest's first entry to
// CUSTOM_MODEL_NAME when set: the manifest entry supplies the capability
// shape, the env var supplies the name the endpoint actually serves. The
// manifest name is kept as an alias so either resolves.
func applyCustomModelName(models []capability.Capabilities, customName string) []capability.Capabilities {
	if customName == "" || len(models) == 0 {
		return models
	}
	for i := range models {
		if models[i].HasAlias(customName) {
			return models
		}
	}
	first := models[0]
	first.Aliases = append(append([]string(nil), first.Aliases...), strings.ToLower(first.ModelName))
	first.ModelName = customName
	models[0] = first
	return models
}

// buildFactories builds one lazy registry.Factory per configured provider
// type.
func buildFactories(ctx context.Context, cfg *config.Config, logger zlog.Logger, retryPolicy retry.Policy, manifests map[capability.ProviderType]capability.Map, restrictor *restriction.Policy) ([]registry.Factory, error) {
	var factories []registry.Factory

	if caps, ok := manifests[capability.Google]; ok {
		apiKey := cfg.APIKey("GOOGLE")
		endpoint := os.Getenv("GEMINI_API_URL")
		factories = append(factories, registry.Factory{
			Type: capability.Google,
			New: func() (provider.Provider, error) {
				p, err := provider.NewGeminiProvider(ctx, apiKey, endpoint, caps, logger, retryPolicy, requestsPerMin)
				if err != nil {
					return nil, err
				}
				p.Restrictor = restrictor
				return p, nil
			},
		})
	}

	if caps, ok := manifests[capability.OpenAI]; ok {
		apiKey := cfg.APIKey("OPENAI")
		factories = append(factories, registry.Factory{
			Type: capability.OpenAI,
			New: func() (provider.Provider, error) {
				return provider.NewOpenAIProvider(apiKey, caps, restrictor, logger, retryPolicy, requestsPerMin), nil
			},
		})
	}

	if caps, ok := manifests[capability.XAI]; ok {
		apiKey := cfg.APIKey("XAI")
		factories = append(factories, registry.Factory{
			Type: capability.XAI,
			New: func() (provider.Provider, error) {
				return provider.NewChatCompletionsProvider(provider.ChatCompletionsConfig{
					Type:           capability.XAI,
					Caps:           caps,
					APIKey:         apiKey,
					BaseURL:        "https://api.x.ai/v1",
					Logger:         logger,
					RetryPolicy:    retryPolicy,
					RequestsPerMin: requestsPerMin,
					Restrictor:     restrictor,
				}), nil
			},
		})
	}

	if caps, ok := manifests[capability.Azure]; ok {
		apiKey := cfg.APIKey("AZURE")
		endpoint := cfg.AzureEndpoint
		apiVersion := cfg.AzureAPIVersion
		factories = append(factories, registry.Factory{
			Type: capability.Azure,
			New: func() (provider.Provider, error) {
				return provider.NewChatCompletionsProvider(provider.ChatCompletionsConfig{
					Type:            capability.Azure,
					Caps:            caps,
					APIKey:          apiKey,
					BaseURL:         endpoint,
					ExtraHeaders:    map[string]string{"api-key": apiKey, "api-version": apiVersion},
					AzureDeployment: true,
					Logger:          logger,
					RetryPolicy:     retryPolicy,
					RequestsPerMin:  requestsPerMin,
					Restrictor:      restrictor,
				}), nil
			},
		})
	}

	if caps, ok := manifests[capability.DIAL]; ok {
		apiKey := cfg.APIKey("DIAL")
		endpoint := os.Getenv("DIAL_API_URL")
		factories = append(factories, registry.Factory{
			Type: capability.DIAL,
			New: func() (provider.Provider, error) {
				return provider.NewChatCompletionsProvider(provider.ChatCompletionsConfig{
					Type:           capability.DIAL,
					Caps:           caps,
					APIKey:         apiKey,
					BaseURL:        endpoint,
					ExtraHeaders:   map[string]string{"Api-Key": apiKey},
					Logger:         logger,
					RetryPolicy:    retryPolicy,
					RequestsPerMin: requestsPerMin,
					Restrictor:     restrictor,
				}), nil
			},
		})
	}

	if caps, ok := manifests[capability.Custom]; ok {
		apiKey := cfg.CustomAPIKey
		endpoint := cfg.CustomAPIURL
		factories = append(factories, registry.Factory{
			Type: capability.Custom,
			New: func() (provider.Provider, error) {
				return provider.NewChatCompletionsProvider(provider.ChatCompletionsConfig{
					Type:           capability.Custom,
					Caps:           caps,
					APIKey:         apiKey,
					BaseURL:        endpoint,
					Logger:         logger,
					RetryPolicy:    retryPolicy,
					RequestsPerMin: requestsPerMin,
					Restrictor:     restrictor,
				}), nil
			},
		})
	}

	if caps, ok := manifests[capability.OpenRouter]; ok {
		apiKey := cfg.APIKey("OPENROUTER")
		factories = append(factories, registry.Factory{
			Type: capability.OpenRouter,
			New: func() (provider.Provider, error) {
				return provider.NewChatCompletionsProvider(provider.ChatCompletionsConfig{
					Type:           capability.OpenRouter,
					Caps:           caps,
					APIKey:         apiKey,
					BaseURL:        "https://openrouter.ai/api/v1",
					Logger:         logger,
					RetryPolicy:    retryPolicy,
					RequestsPerMin: requestsPerMin,
					Restrictor:     restrictor,
				}), nil
			},
		})
	}

	return factories, nil
}

// buildDeps adapts the registry/memory/workflow services into the
// dispatch.Deps shape internal/tool strategies consume, so internal/tool
// never imports those packages directly.
func buildDeps(cfg *config.Config, reg *registry.Registry, store *memory.Store, engine *workflow.Engine) dispatch.Deps {
	return dispatch.Deps{
		DefaultModel:          cfg.DefaultModel,
		ThinkdeepThinkingMode: cfg.DefaultThinkingModeThinkdeep,
		Generate: func(ctx context.Context, req dispatch.GenerateParams) (*dispatch.GenerateResult, error) {
			history := make([]provider.Message, 0, len(req.History))
			for _, h := range req.History {
				history = append(history, provider.Message{Role: h.Role, Content: h.Content})
			}
			resp, err := reg.Generate(ctx, provider.GenerateRequest{
				Prompt:          req.Prompt,
				ModelName:       req.ModelName,
				SystemPrompt:    req.SystemPrompt,
				Temperature:     req.Temperature,
				MaxOutputTokens: req.MaxOutputTokens,
				Images:          req.Images,
				JSONMode:        req.JSONMode,
				ThinkingMode:    req.ThinkingMode,
				History:         history,
			})
			if err != nil {
				return nil, err
			}
			return &dispatch.GenerateResult{
				Content:      resp.Content,
				ModelName:    resp.ModelName,
				FriendlyName: resp.FriendlyName,
				FinishReason: resp.FinishReason,
			}, nil
		},
		ListAuto: reg.ListForTool,
		HistoryBudget: func(model string) int {
			const fallback = 8192
			p, err := reg.GetProviderForModel(model)
			if err != nil {
				return fallback
			}
			caps, err := p.Capabilities(model)
			if err != nil || caps.ContextWindow <= 0 {
				return fallback
			}
			return caps.ContextWindow * 60 / 100
		},
		CreateThread: func(toolName string, initial dispatch.HistoryTurn, files []string) string {
			return store.CreateThread(toolName, memory.Turn{Role: initial.Role, Content: initial.Content, ToolName: toolName, Files: files}, "")
		},
		AppendTurn: func(threadID string, turn dispatch.HistoryTurn, toolName string, files []string) (int, error) {
			return store.AppendTurn(threadID, memory.Turn{Role: turn.Role, Content: turn.Content, ToolName: toolName, Files: files})
		},
		Reconstruct: func(threadID string, budgetTokens int) ([]dispatch.HistoryTurn, error) {
			turns, err := store.Reconstruct(threadID, budgetTokens)
			if err != nil {
				return nil, err
			}
			out := make([]dispatch.HistoryTurn, 0, len(turns))
			for _, t := range turns {
				out = append(out, dispatch.HistoryTurn{Role: t.Role, Content: t.Content})
			}
			return out, nil
		},
		Step: func(ctx context.Context, req dispatch.StepRequest) (*dispatch.StepResult, error) {
			result, err := engine.Step(ctx, workflow.StepRequest{
				ToolName:                 req.ToolName,
				ContinuationID:           req.ContinuationID,
				StepNumber:               req.StepNumber,
				TotalSteps:               req.TotalSteps,
				NextStepRequired:         req.NextStepRequired,
				Findings:                 req.Findings,
				Files:                    req.Files,
				RequiredActions:          req.RequiredActions,
				ShouldCallExpertAnalysis: req.ShouldCallExpertAnalysis,
				ExpertModel:              req.ExpertModel,
				ExpertSystemPrompt:       req.ExpertSystemPrompt,
				ExpertThinkingMode:       req.ExpertThinkingMode,
				ReconstructBudgetTokens:  req.ReconstructBudgetTokens,
			})
			if err != nil {
				return nil, err
			}
			return &dispatch.StepResult{
				Status:           string(result.Status),
				ContinuationID:   result.ContinuationID,
				RequiredActions:  result.RequiredActions,
				ConsolidatedText: result.ConsolidatedText,
				ExpertAnalysis:   result.ExpertAnalysis,
			}, nil
		},
	}
}

// registerTool publishes one dispatch.Descriptor as an mcp-go tool,
// bridging the call into the dispatcher and the structured result back
// into MCP's content-block shape.
func registerTool(mcpServer *server.MCPServer, disp *dispatch.Dispatcher, descriptor dispatch.Descriptor, logger zlog.Logger) {
	schemaJSON, err := json.Marshal(descriptor.InputSchema)
	if err != nil {
		logger.Error(context.Background(), "failed to marshal tool schema", zlog.F("tool", descriptor.Name), zlog.F("error", err.Error()))
		return
	}

	mcpTool := mcp.NewToolWithRawSchema(descriptor.Name, descriptor.Description, schemaJSON)
	mcpServer.AddTool(mcpTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := disp.CallTool(ctx, descriptor.Name, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return toCallToolResult(out), nil
	})
}

// toCallToolResult renders a dispatch.Output into MCP content blocks.
// Workflow tools' status/continuation_id are appended as a trailing text
// block rather than a transport-specific metadata field, since the only
// contract this server depends on from the MCP transport is the plain
// content-block array.
func toCallToolResult(out *dispatch.Output) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(out.Content)+1)
	for _, block := range out.Content {
		switch block.Type {
		case "file_reference":
			content = append(content, mcp.NewTextContent(fmt.Sprintf("file_reference: %s", block.Path)))
		default:
			content = append(content, mcp.NewTextContent(block.Text))
		}
	}
	if out.Status != "" || out.ContinuationID != "" {
		content = append(content, mcp.NewTextContent(fmt.Sprintf("status=%s continuation_id=%s", out.Status, out.ContinuationID)))
	}
	return &mcp.CallToolResult{Content: content}
}
