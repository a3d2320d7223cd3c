package tool

import (
	"context"
	"fmt"

	"github.com/zenmcp/server-core/internal/dispatch"
)

func init() {
	register("thinkdeep", newThinkdeepTool)
}

// thinkdeepTool is a multi-step workflow tool: each call contributes one
// step's findings, and the engine decides whether to pause for more
// investigation or to call an expert model for a final synthesis.
// DEFAULT_THINKING_MODE_THINKDEEP (default "high") governs the thinking
// effort the expert-analysis call uses.
type thinkdeepTool struct {
	deps                dispatch.Deps
	defaultThinkingMode string
}

func newThinkdeepTool(deps dispatch.Deps) dispatch.Tool {
	mode := deps.ThinkdeepThinkingMode
	if mode == "" {
		mode = "high"
	}
	return &thinkdeepTool{deps: deps, defaultThinkingMode: mode}
}

func (t *thinkdeepTool) Name() string     { return "thinkdeep" }
func (t *thinkdeepTool) Category() string { return "reasoning" }
func (t *thinkdeepTool) Description() string {
	return "Multi-step extended reasoning over a hard problem, with an optional expert-analysis synthesis at the end."
}

func (t *thinkdeepTool) Fields() map[string]dispatch.FieldSpec {
	return map[string]dispatch.FieldSpec{
		"step":               dispatch.String("this step's findings or reasoning"),
		"step_number":        dispatch.Number("1-based index of this step"),
		"total_steps":        dispatch.Number("the investigator's current estimate of total steps needed"),
		"next_step_required": dispatch.Bool("true if another step follows this one"),
		"confidence":         dispatch.Enum("confidence in the findings so far", "low", "medium", "high", "certain"),
	}
}

func (t *thinkdeepTool) Required() []string {
	return []string{"step", "step_number", "total_steps", "next_step_required"}
}

func (t *thinkdeepTool) Execute(ctx context.Context, in dispatch.Input) (*dispatch.Output, error) {
	step, _ := fieldString(in, "step")
	stepNumber := fieldInt(in, "step_number")
	totalSteps := fieldInt(in, "total_steps")
	nextRequired := fieldBool(in, "next_step_required")
	confidence, _ := fieldString(in, "confidence")

	thinkingMode := in.ThinkingMode()
	if thinkingMode == "" {
		thinkingMode = t.defaultThinkingMode
	}

	model := resolveModel(t.deps, in.Model(), "reasoning")

	result, err := t.deps.Step(ctx, dispatch.StepRequest{
		ToolName:                 "thinkdeep",
		ContinuationID:           in.ContinuationID(),
		StepNumber:               stepNumber,
		TotalSteps:               totalSteps,
		NextStepRequired:         nextRequired,
		Findings:                 step,
		Files:                    in.Files(),
		RequiredActions:          []string{"gather further evidence", "re-examine assumptions from the prior step"},
		ShouldCallExpertAnalysis: !nextRequired && confidence != "certain",
		ExpertModel:              model,
		ExpertSystemPrompt:       "Synthesize the accumulated findings below into a single, final, well-reasoned answer.",
		ExpertThinkingMode:       thinkingMode,
	})
	if err != nil {
		return nil, err
	}

	text := result.ConsolidatedText
	if result.ExpertAnalysis != "" {
		text = fmt.Sprintf("%s\n\n--- expert analysis ---\n%s", text, result.ExpertAnalysis)
	}

	return &dispatch.Output{
		Content:        []dispatch.ContentBlock{dispatch.TextBlock(text)},
		Status:         result.Status,
		ContinuationID: result.ContinuationID,
	}, nil
}

func fieldString(in dispatch.Input, key string) (string, bool) {
	v, ok := in.Field(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func fieldInt(in dispatch.Input, key string) int {
	v, ok := in.Field(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func fieldBool(in dispatch.Input, key string) bool {
	v, ok := in.Field(key)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
