// Package workflow implements the step state machine multi-step tools
// (thinkdeep and friends) run on: each tool invocation contributes one
// step's findings, and the engine decides whether to pause for further
// investigation, call an expert model for a final synthesis, or complete.
// Findings accumulate in conversation memory rather than in engine-local
// state, so a workflow resumes across invocations sharing the same store.
package workflow

import (
	"context"
	"fmt"

	"github.com/zenmcp/server-core/internal/agenterrors"
	"github.com/zenmcp/server-core/internal/memory"
	"github.com/zenmcp/server-core/internal/provider"
	"github.com/zenmcp/server-core/internal/zlog"
)

// Status is the workflow-tool output status field.
type Status string

const (
	StatusPauseForInvestigation Status = "pause_for_investigation"
	StatusExpertAnalysisPending Status = "expert_analysis_pending"
	StatusComplete              Status = "complete"
)

// StepRequest is what a workflow tool hands the engine on each
// invocation. ShouldCallExpertAnalysis and RequiredActions are
// tool-specific policy decisions the calling tool computes itself; the
// engine only sequences around them.
type StepRequest struct {
	ToolName                 string
	ContinuationID           string // empty starts a new workflow thread
	StepNumber               int
	TotalSteps               int
	NextStepRequired         bool
	Findings                 string // this step's contribution to consolidated_findings
	Files                    []string
	RequiredActions          []string // only used when pausing
	ShouldCallExpertAnalysis bool     // only consulted when NextStepRequired is false
	ExpertModel              string   // model alias/canonical for the expert-analysis call
	ExpertSystemPrompt       string
	ExpertThinkingMode       string
	ReconstructBudgetTokens  int
}

// StepResult is returned to the tool, which renders it into the
// content-block/status/continuation_id tool output shape.
type StepResult struct {
	Status           Status
	ContinuationID   string
	RequiredActions  []string
	ConsolidatedText string // the accumulated findings, newline-joined
	ExpertAnalysis   string // only set when Status transitions via expert analysis
}

// GenerateFunc is the subset of the registry's Generate the engine needs
// for the expert-analysis handoff; defined here rather than importing
// internal/registry directly to keep workflow decoupled from provider
// selection policy.
type GenerateFunc func(ctx context.Context, req provider.GenerateRequest) (*provider.ModelResponse, error)

// Engine runs the step state machine against the shared conversation
// memory store.
type Engine struct {
	memory   *memory.Store
	generate GenerateFunc
	logger   zlog.Logger
}

// New builds an Engine. generate is used only for the expert-analysis
// call; ordinary step turns never make a provider call.
func New(store *memory.Store, generate GenerateFunc, logger zlog.Logger) *Engine {
	if logger == nil {
		logger = zlog.Noop{}
	}
	return &Engine{memory: store, generate: generate, logger: logger}
}

// Step advances the workflow by one call.
func (e *Engine) Step(ctx context.Context, req StepRequest) (*StepResult, error) {
	threadID := req.ContinuationID
	userTurn := memory.Turn{Role: "user", Content: req.Findings, ToolName: req.ToolName, Files: req.Files}

	if threadID == "" {
		threadID = e.memory.CreateThread(req.ToolName, userTurn, "")
	} else if _, err := e.memory.AppendTurn(threadID, userTurn); err != nil {
		return nil, err
	}

	if req.NextStepRequired && req.StepNumber < req.TotalSteps {
		return e.pause(threadID, req)
	}
	if req.ShouldCallExpertAnalysis {
		return e.expertAnalysis(ctx, threadID, req)
	}
	return e.complete(threadID, req, "")
}

// pause records the step and tells the host what to investigate next. No
// provider call is made.
func (e *Engine) pause(threadID string, req StepRequest) (*StepResult, error) {
	msg := fmt.Sprintf("awaiting step %d of %d", req.StepNumber+1, req.TotalSteps)
	assistantTurn := memory.Turn{Role: "assistant", Content: msg, ToolName: req.ToolName}
	if _, err := e.memory.AppendTurn(threadID, assistantTurn); err != nil {
		return nil, err
	}

	consolidated, err := e.consolidatedText(threadID, req)
	if err != nil {
		return nil, err
	}

	return &StepResult{
		Status:           StatusPauseForInvestigation,
		ContinuationID:   threadID,
		RequiredActions:  req.RequiredActions,
		ConsolidatedText: consolidated,
	}, nil
}

// expertAnalysis asks the configured expert model for a final
// consolidated answer.
func (e *Engine) expertAnalysis(ctx context.Context, threadID string, req StepRequest) (*StepResult, error) {
	consolidated, err := e.consolidatedText(threadID, req)
	if err != nil {
		return nil, err
	}

	if e.generate == nil {
		return nil, agenterrors.New(agenterrors.Internal, "workflow: expert analysis requested but no generate function configured", nil)
	}

	resp, err := e.generate(ctx, provider.GenerateRequest{
		Prompt:       consolidated,
		ModelName:    req.ExpertModel,
		SystemPrompt: req.ExpertSystemPrompt,
		ThinkingMode: req.ExpertThinkingMode,
	})
	if err != nil {
		// Expert-analysis calls are never retried automatically; surface
		// the failure so the host can decide.
		return nil, err
	}

	assistantTurn := memory.Turn{Role: "assistant", Content: resp.Content, ToolName: req.ToolName, ModelUsed: resp.ModelName}
	if _, err := e.memory.AppendTurn(threadID, assistantTurn); err != nil {
		return nil, err
	}

	return e.complete(threadID, req, resp.Content)
}

func (e *Engine) complete(threadID string, req StepRequest, expertAnalysis string) (*StepResult, error) {
	consolidated, err := e.consolidatedText(threadID, req)
	if err != nil {
		return nil, err
	}
	return &StepResult{
		Status:           StatusComplete,
		ContinuationID:   threadID,
		ConsolidatedText: consolidated,
		ExpertAnalysis:   expertAnalysis,
	}, nil
}

func (e *Engine) consolidatedText(threadID string, req StepRequest) (string, error) {
	budget := req.ReconstructBudgetTokens
	if budget <= 0 {
		budget = 8192
	}
	turns, err := e.memory.Reconstruct(threadID, budget)
	if err != nil {
		return "", err
	}
	var out string
	for i, t := range turns {
		if i > 0 {
			out += "\n\n"
		}
		out += "[" + t.Role + "] " + t.Content
	}
	return out, nil
}
