package tool

import (
	"context"

	"github.com/zenmcp/server-core/internal/dispatch"
)

func init() {
	register("chat", newChatTool)
}

// chatTool is a simple (non-workflow) tool: one request, one response,
// optionally continuing a prior thread via continuation_id.
type chatTool struct {
	deps dispatch.Deps
}

func newChatTool(deps dispatch.Deps) dispatch.Tool { return &chatTool{deps: deps} }

func (t *chatTool) Name() string        { return "chat" }
func (t *chatTool) Category() string    { return "chat" }
func (t *chatTool) Description() string { return "General-purpose chat and brainstorming with any configured model." }

func (t *chatTool) Fields() map[string]dispatch.FieldSpec {
	return map[string]dispatch.FieldSpec{
		"prompt": dispatch.String("the question or message to send to the model"),
	}
}

func (t *chatTool) Required() []string { return []string{"prompt"} }

func (t *chatTool) Execute(ctx context.Context, in dispatch.Input) (*dispatch.Output, error) {
	promptVal, _ := in.Field("prompt")
	prompt, _ := promptVal.(string)

	model := resolveModel(t.deps, in.Model(), "chat")

	threadID := in.ContinuationID()
	var history []dispatch.HistoryTurn
	if threadID != "" && t.deps.Reconstruct != nil {
		budget := 8192
		if t.deps.HistoryBudget != nil {
			budget = t.deps.HistoryBudget(model)
		}
		turns, err := t.deps.Reconstruct(threadID, budget)
		if err != nil {
			return nil, err
		}
		history = turns
	}

	var temperature *float64
	if tv, ok := in.Temperature(); ok {
		temperature = &tv
	}

	resp, err := t.deps.Generate(ctx, dispatch.GenerateParams{
		Prompt:       prompt,
		ModelName:    model,
		Temperature:  temperature,
		ThinkingMode: in.ThinkingMode(),
		Images:       in.Images(),
		History:      history,
	})
	if err != nil {
		return nil, err
	}

	turn := dispatch.HistoryTurn{Role: "user", Content: prompt}
	assistantTurn := dispatch.HistoryTurn{Role: "assistant", Content: resp.Content}

	if threadID == "" {
		threadID = t.deps.CreateThread("chat", turn, in.Files())
	} else if _, err := t.deps.AppendTurn(threadID, turn, "chat", in.Files()); err != nil {
		return nil, err
	}
	if _, err := t.deps.AppendTurn(threadID, assistantTurn, "chat", nil); err != nil {
		return nil, err
	}

	return &dispatch.Output{
		Content:        []dispatch.ContentBlock{dispatch.TextBlock(resp.Content)},
		ContinuationID: threadID,
	}, nil
}

// resolveModel resolves "auto" (or an empty model) to the registry's
// top-ranked capability for this tool's category. An omitted model first
// falls back to the operator's DEFAULT_MODEL, which may itself be "auto".
func resolveModel(deps dispatch.Deps, requested, category string) string {
	if requested == "" {
		requested = deps.DefaultModel
	}
	if requested != "" && requested != "auto" {
		return requested
	}
	if deps.ListAuto == nil {
		return requested
	}
	caps := deps.ListAuto(category, 1)
	if len(caps) == 0 {
		return requested
	}
	return caps[0].ModelName
}
