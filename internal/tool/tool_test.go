package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenmcp/server-core/internal/capability"
	"github.com/zenmcp/server-core/internal/dispatch"
)

func TestAll_RegistersChatAndThinkdeep(t *testing.T) {
	tools := All(dispatch.Deps{})
	names := make(map[string]bool, len(tools))
	for _, tl := range tools {
		names[tl.Name()] = true
	}
	assert.True(t, names["chat"])
	assert.True(t, names["thinkdeep"])
	assert.True(t, names["listmodels"])
}

func TestListModelsTool_RendersRankedModels(t *testing.T) {
	deps := dispatch.Deps{
		ListAuto: func(category string, topN int) []*capability.Capabilities {
			return []*capability.Capabilities{
				{ModelName: "gemini-2.5-pro", Provider: capability.Google, Aliases: []string{"pro"}, ContextWindow: 1048576},
				{ModelName: "gpt-5", Provider: capability.OpenAI},
			}
		},
	}
	var lm dispatch.Tool
	for _, tl := range All(deps) {
		if tl.Name() == "listmodels" {
			lm = tl
		}
	}
	require.NotNil(t, lm)

	out, err := lm.Execute(context.Background(), dispatch.NewInput(nil))
	require.NoError(t, err)
	require.Len(t, out.Content, 1)
	assert.Contains(t, out.Content[0].Text, "gemini-2.5-pro (GOOGLE) aliases: pro")
	assert.Contains(t, out.Content[0].Text, "gpt-5 (OPENAI)")
}

func TestListModelsTool_NoProvidersConfigured(t *testing.T) {
	var lm dispatch.Tool
	for _, tl := range All(dispatch.Deps{}) {
		if tl.Name() == "listmodels" {
			lm = tl
		}
	}
	require.NotNil(t, lm)

	out, err := lm.Execute(context.Background(), dispatch.NewInput(nil))
	require.NoError(t, err)
	assert.Contains(t, out.Content[0].Text, "no providers configured")
}

func TestResolveModel_PassesThroughExplicitRequest(t *testing.T) {
	assert.Equal(t, "gpt-5", resolveModel(dispatch.Deps{}, "gpt-5", "chat"))
}

func TestResolveModel_AutoDefersToListAuto(t *testing.T) {
	deps := dispatch.Deps{
		ListAuto: func(category string, topN int) []*capability.Capabilities {
			assert.Equal(t, "chat", category)
			return []*capability.Capabilities{{ModelName: "gemini-2.5-pro"}}
		},
	}
	assert.Equal(t, "gemini-2.5-pro", resolveModel(deps, "auto", "chat"))
	assert.Equal(t, "gemini-2.5-pro", resolveModel(deps, "", "chat"))
}

func TestResolveModel_AutoWithNoListAutoReturnsRequested(t *testing.T) {
	assert.Equal(t, "auto", resolveModel(dispatch.Deps{}, "auto", "chat"))
}

func TestResolveModel_OmittedModelFallsBackToDefaultModel(t *testing.T) {
	deps := dispatch.Deps{DefaultModel: "gemini-2.5-flash"}
	assert.Equal(t, "gemini-2.5-flash", resolveModel(deps, "", "chat"))
}

func TestThinkdeepTool_DefaultThinkingModeFromDeps(t *testing.T) {
	td := newThinkdeepTool(dispatch.Deps{ThinkdeepThinkingMode: "max"}).(*thinkdeepTool)
	assert.Equal(t, "max", td.defaultThinkingMode)

	td = newThinkdeepTool(dispatch.Deps{}).(*thinkdeepTool)
	assert.Equal(t, "high", td.defaultThinkingMode)
}

func newChatDeps(t *testing.T) (dispatch.Deps, *[]dispatch.HistoryTurn) {
	appended := []dispatch.HistoryTurn{}
	threadStore := map[string][]dispatch.HistoryTurn{}

	deps := dispatch.Deps{
		Generate: func(ctx context.Context, req dispatch.GenerateParams) (*dispatch.GenerateResult, error) {
			return &dispatch.GenerateResult{Content: "model reply", ModelName: req.ModelName}, nil
		},
		CreateThread: func(toolName string, initial dispatch.HistoryTurn, files []string) string {
			threadStore["t1"] = []dispatch.HistoryTurn{initial}
			return "t1"
		},
		AppendTurn: func(threadID string, turn dispatch.HistoryTurn, toolName string, files []string) (int, error) {
			threadStore[threadID] = append(threadStore[threadID], turn)
			appended = append(appended, turn)
			return len(threadStore[threadID]), nil
		},
		Reconstruct: func(threadID string, budget int) ([]dispatch.HistoryTurn, error) {
			return threadStore[threadID], nil
		},
	}
	return deps, &appended
}

func TestChatTool_NewThreadCreatesAndAppendsTurns(t *testing.T) {
	deps, appended := newChatDeps(t)
	tools := All(deps)
	var chat dispatch.Tool
	for _, tl := range tools {
		if tl.Name() == "chat" {
			chat = tl
		}
	}
	require.NotNil(t, chat)

	out, err := chat.Execute(context.Background(), dispatch.NewInput(map[string]interface{}{
		"prompt": "hello there", "model": "gpt-5",
	}))
	require.NoError(t, err)
	assert.Equal(t, "t1", out.ContinuationID)
	require.Len(t, out.Content, 1)
	assert.Equal(t, "model reply", out.Content[0].Text)
	assert.Len(t, *appended, 1, "assistant turn appended once for a fresh thread")
}

func TestChatTool_ContinuationReconstructsHistoryBeforeGenerate(t *testing.T) {
	var sawHistory []dispatch.HistoryTurn
	deps := dispatch.Deps{
		Generate: func(ctx context.Context, req dispatch.GenerateParams) (*dispatch.GenerateResult, error) {
			sawHistory = req.History
			return &dispatch.GenerateResult{Content: "second reply"}, nil
		},
		AppendTurn: func(threadID string, turn dispatch.HistoryTurn, toolName string, files []string) (int, error) {
			return 1, nil
		},
		Reconstruct: func(threadID string, budget int) ([]dispatch.HistoryTurn, error) {
			return []dispatch.HistoryTurn{{Role: "user", Content: "first message"}}, nil
		},
	}
	tools := All(deps)
	var chat dispatch.Tool
	for _, tl := range tools {
		if tl.Name() == "chat" {
			chat = tl
		}
	}
	require.NotNil(t, chat)

	_, err := chat.Execute(context.Background(), dispatch.NewInput(map[string]interface{}{
		"prompt": "follow up", "continuation_id": "existing-thread",
	}))
	require.NoError(t, err)
	require.Len(t, sawHistory, 1)
	assert.Equal(t, "first message", sawHistory[0].Content)
}

func TestThinkdeepTool_PausesAndCallsStepWithExpectedFields(t *testing.T) {
	var gotReq dispatch.StepRequest
	deps := dispatch.Deps{
		Step: func(ctx context.Context, req dispatch.StepRequest) (*dispatch.StepResult, error) {
			gotReq = req
			return &dispatch.StepResult{Status: "pause_for_investigation", ContinuationID: "wf-1"}, nil
		},
	}
	tools := All(deps)
	var thinkdeep dispatch.Tool
	for _, tl := range tools {
		if tl.Name() == "thinkdeep" {
			thinkdeep = tl
		}
	}
	require.NotNil(t, thinkdeep)

	out, err := thinkdeep.Execute(context.Background(), dispatch.NewInput(map[string]interface{}{
		"step": "investigating the root cause", "step_number": float64(1),
		"total_steps": float64(3), "next_step_required": true,
	}))
	require.NoError(t, err)
	assert.Equal(t, "pause_for_investigation", out.Status)
	assert.Equal(t, "wf-1", out.ContinuationID)
	assert.Equal(t, 1, gotReq.StepNumber)
	assert.Equal(t, 3, gotReq.TotalSteps)
	assert.True(t, gotReq.NextStepRequired)
	assert.False(t, gotReq.ShouldCallExpertAnalysis, "should not request expert analysis while more steps remain")
}

func TestThinkdeepTool_FinalStepRequestsExpertAnalysisUnlessCertain(t *testing.T) {
	var gotReq dispatch.StepRequest
	deps := dispatch.Deps{
		Step: func(ctx context.Context, req dispatch.StepRequest) (*dispatch.StepResult, error) {
			gotReq = req
			return &dispatch.StepResult{Status: "complete", ExpertAnalysis: "final answer"}, nil
		},
	}
	tools := All(deps)
	var thinkdeep dispatch.Tool
	for _, tl := range tools {
		if tl.Name() == "thinkdeep" {
			thinkdeep = tl
		}
	}
	require.NotNil(t, thinkdeep)

	out, err := thinkdeep.Execute(context.Background(), dispatch.NewInput(map[string]interface{}{
		"step": "final findings", "step_number": float64(3),
		"total_steps": float64(3), "next_step_required": false, "confidence": "high",
	}))
	require.NoError(t, err)
	assert.True(t, gotReq.ShouldCallExpertAnalysis)
	assert.Equal(t, "high", gotReq.ExpertThinkingMode, "default thinking mode flows to the expert call")
	assert.Contains(t, out.Content[0].Text, "expert analysis")
}

func TestThinkdeepTool_CertainConfidenceSkipsExpertAnalysis(t *testing.T) {
	var gotReq dispatch.StepRequest
	deps := dispatch.Deps{
		Step: func(ctx context.Context, req dispatch.StepRequest) (*dispatch.StepResult, error) {
			gotReq = req
			return &dispatch.StepResult{Status: "complete"}, nil
		},
	}
	tools := All(deps)
	var thinkdeep dispatch.Tool
	for _, tl := range tools {
		if tl.Name() == "thinkdeep" {
			thinkdeep = tl
		}
	}
	require.NotNil(t, thinkdeep)

	_, err := thinkdeep.Execute(context.Background(), dispatch.NewInput(map[string]interface{}{
		"step": "final findings", "step_number": float64(3),
		"total_steps": float64(3), "next_step_required": false, "confidence": "certain",
	}))
	require.NoError(t, err)
	assert.False(t, gotReq.ShouldCallExpertAnalysis)
}
