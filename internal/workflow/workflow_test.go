package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/memory"
	"github.com/zenmcp/server-core/internal/provider"
)

func TestStep_PausesWhenMoreStepsRemain(t *testing.T) {
	store := memory.New(time.Hour, 50, 10, nil)
	calls := 0
	engine := New(store, func(ctx context.Context, req provider.GenerateRequest) (*provider.ModelResponse, error) {
		calls++
		return nil, errors.New("should never be called")
	}, nil)

	result, err := engine.Step(context.Background(), StepRequest{
		ToolName: "thinkdeep", StepNumber: 1, TotalSteps: 3, NextStepRequired: true,
		Findings: "initial investigation",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusPauseForInvestigation, result.Status)
	assert.NotEmpty(t, result.ContinuationID)
	assert.Equal(t, 0, calls, "no provider call is made while pausing between steps")
}

func TestStep_CompletesWithoutExpertAnalysisWhenNotRequested(t *testing.T) {
	store := memory.New(time.Hour, 50, 10, nil)
	engine := New(store, nil, nil)

	result, err := engine.Step(context.Background(), StepRequest{
		ToolName: "thinkdeep", StepNumber: 3, TotalSteps: 3, NextStepRequired: false,
		Findings: "final findings", ShouldCallExpertAnalysis: false,
	})

	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Empty(t, result.ExpertAnalysis)
}

func TestStep_ExpertAnalysisCallsGenerateAndCompletes(t *testing.T) {
	store := memory.New(time.Hour, 50, 10, nil)
	engine := New(store, func(ctx context.Context, req provider.GenerateRequest) (*provider.ModelResponse, error) {
		assert.Equal(t, "expert-model", req.ModelName)
		return &provider.ModelResponse{Content: "expert says yes", ModelName: "expert-model"}, nil
	}, nil)

	result, err := engine.Step(context.Background(), StepRequest{
		ToolName: "thinkdeep", StepNumber: 3, TotalSteps: 3, NextStepRequired: false,
		Findings: "final findings", ShouldCallExpertAnalysis: true, ExpertModel: "expert-model",
	})

	require.NoError(t, err)
	assert.Equal(t, StatusComplete, result.Status)
	assert.Equal(t, "expert says yes", result.ExpertAnalysis)
}

func TestStep_ExpertAnalysisWithoutGenerateFuncReturnsInternalError(t *testing.T) {
	store := memory.New(time.Hour, 50, 10, nil)
	engine := New(store, nil, nil)

	_, err := engine.Step(context.Background(), StepRequest{
		ToolName: "thinkdeep", StepNumber: 3, TotalSteps: 3, NextStepRequired: false,
		ShouldCallExpertAnalysis: true, ExpertModel: "expert-model",
	})
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.Internal))
}

func TestStep_ContinuesExistingThreadAcrossSteps(t *testing.T) {
	store := memory.New(time.Hour, 50, 10, nil)
	engine := New(store, nil, nil)

	first, err := engine.Step(context.Background(), StepRequest{
		ToolName: "thinkdeep", StepNumber: 1, TotalSteps: 2, NextStepRequired: true,
		Findings: "step one finding",
	})
	require.NoError(t, err)

	second, err := engine.Step(context.Background(), StepRequest{
		ToolName: "thinkdeep", ContinuationID: first.ContinuationID,
		StepNumber: 2, TotalSteps: 2, NextStepRequired: false,
		Findings: "step two finding",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, second.Status)
	assert.Contains(t, second.ConsolidatedText, "step one finding")
	assert.Contains(t, second.ConsolidatedText, "step two finding")
}

func TestStep_UnknownContinuationIDReturnsError(t *testing.T) {
	store := memory.New(time.Hour, 50, 10, nil)
	engine := New(store, nil, nil)

	_, err := engine.Step(context.Background(), StepRequest{
		ToolName: "thinkdeep", ContinuationID: "does-not-exist",
		StepNumber: 2, TotalSteps: 2, NextStepRequired: false,
	})
	require.Error(t, err)
}
