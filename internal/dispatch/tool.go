package dispatch

import (
	"context"

	"github.com/zenmcp/server-core/internal/capability"
)

// Input wraps a validated tool-call argument map with typed accessors for
// the common fields every tool shares, leaving tool-specific fields
// reachable via Raw/Field.
type Input struct {
	args map[string]interface{}
}

// NewInput wraps an already-validated argument map.
func NewInput(args map[string]interface{}) Input {
	if args == nil {
		args = map[string]interface{}{}
	}
	return Input{args: args}
}

func (in Input) str(key string) string {
	v, _ := in.args[key].(string)
	return v
}

func (in Input) strSlice(key string) []string {
	raw, ok := in.args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (in Input) Model() string           { return in.str("model") }
func (in Input) ThinkingMode() string     { return in.str("thinking_mode") }
func (in Input) ContinuationID() string   { return in.str("continuation_id") }
func (in Input) WorkingDirectory() string { return in.str("working_directory") }
func (in Input) Files() []string         { return in.strSlice("files") }
func (in Input) Images() []string        { return in.strSlice("images") }

// Temperature returns the requested temperature and whether one was given.
func (in Input) Temperature() (float64, bool) {
	v, ok := in.args["temperature"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Field returns a tool-specific argument verbatim, for tools to decode
// their own fields out of.
func (in Input) Field(key string) (interface{}, bool) {
	v, ok := in.args[key]
	return v, ok
}

// Raw returns the full validated argument map.
func (in Input) Raw() map[string]interface{} { return in.args }

// ContentBlock is one piece of a tool's output, mirroring MCP's
// text/file_reference content-block shape.
type ContentBlock struct {
	Type string `json:"type"` // "text" | "file_reference"
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
}

// TextBlock is a convenience constructor for the common case.
func TextBlock(text string) ContentBlock { return ContentBlock{Type: "text", Text: text} }

// Output is what a tool strategy returns to the dispatcher. Status and
// ContinuationID are only meaningful for workflow tools; simple tools
// leave them zero-valued.
type Output struct {
	Content        []ContentBlock
	Status         string // "", "pause_for_investigation", "expert_analysis_pending", "complete"
	ContinuationID string
}

// Tool is the contract every tool strategy implements: the descriptor
// pieces (name, description, category, field declarations) plus a
// context-aware Execute that returns structured content blocks.
type Tool interface {
	Name() string
	Description() string
	Category() string
	Fields() map[string]FieldSpec
	Required() []string
	Execute(ctx context.Context, in Input) (*Output, error)
}

// Deps bundles the shared services a tool's Execute needs: model
// resolution/generation via the registry, conversation continuation via
// conversation memory, and multi-step sequencing via the workflow engine.
// Defined here (rather than importing registry/memory/workflow directly
// into every tool package) to keep internal/tool free of an import cycle
// back onto internal/dispatch.
type Deps struct {
	Generate func(ctx context.Context, req GenerateParams) (*GenerateResult, error)
	ListAuto func(category string, topN int) []*capability.Capabilities

	// DefaultModel backs tool calls that omit the model field entirely
	// (DEFAULT_MODEL env var, "auto" unless the operator overrides it).
	DefaultModel string

	// ThinkdeepThinkingMode is DEFAULT_THINKING_MODE_THINKDEEP.
	ThinkdeepThinkingMode string

	// Continuation mirrors the memory.Store surface a simple tool needs to
	// participate in a multi-turn conversation.
	CreateThread func(toolName string, initial HistoryTurn, files []string) string
	AppendTurn   func(threadID string, turn HistoryTurn, toolName string, files []string) (int, error)
	Reconstruct  func(threadID string, budgetTokens int) ([]HistoryTurn, error)

	// HistoryBudget returns the reconstruct token budget for a model:
	// 60% of its context window, or a conservative default when the model
	// can't be resolved.
	HistoryBudget func(model string) int

	// Step drives the workflow engine for multi-step tools.
	Step func(ctx context.Context, req StepRequest) (*StepResult, error)
}

// StepRequest/StepResult mirror workflow.StepRequest/StepResult, decoupled
// so internal/tool doesn't import internal/workflow directly.
type StepRequest struct {
	ToolName                 string
	ContinuationID           string
	StepNumber               int
	TotalSteps               int
	NextStepRequired         bool
	Findings                 string
	Files                    []string
	RequiredActions          []string
	ShouldCallExpertAnalysis bool
	ExpertModel              string
	ExpertSystemPrompt       string
	ExpertThinkingMode       string
	ReconstructBudgetTokens  int
}

type StepResult struct {
	Status           string
	ContinuationID   string
	RequiredActions  []string
	ConsolidatedText string
	ExpertAnalysis   string
}

// GenerateParams is the subset of provider.GenerateRequest a tool
// strategy fills in; the dispatcher/registry wiring fills ModelName after
// resolving "auto" or an alias.
type GenerateParams struct {
	Prompt          string
	ModelName       string
	SystemPrompt    string
	Temperature     *float64
	MaxOutputTokens int
	Images          []string
	JSONMode        bool
	ThinkingMode    string
	History         []HistoryTurn
}

// HistoryTurn is a minimal role/content pair, decoupled from the memory
// package's Turn so internal/tool doesn't need to import internal/memory.
type HistoryTurn struct {
	Role    string
	Content string
}

// GenerateResult is the subset of provider.ModelResponse a tool needs.
type GenerateResult struct {
	Content      string
	ModelName    string
	FriendlyName string
	FinishReason string
}
