// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package routing decides which step of the generation graph runs next.
// Every function is a pure query over the workflow state: no side effects,
// no panics, and zero-valued fields are treated as their defaults.
package routing

import (
	"strings"

	"github.com/pdiddy/docweaver/pkg/types"
)

const (
	// MaxFixAttempts bounds automatic-fix cycles per chapter.
	MaxFixAttempts = 3

	// MaxRetryAttempts bounds error-triggered rollback cycles and conversion retries.
	MaxRetryAttempts = 3
)

// Decision is the outcome of ShouldRetryConversion.
type Decision string

const (
	DecisionRetry Decision = "retry"
	DecisionFail  Decision = "fail"
)

// RouteAfterTools picks the step after the tools step. Priority: a pending
// human question, then a fresh checkpoint awaiting validation, then
// completion, otherwise back to the agent.
func RouteAfterTools(s types.WorkflowState) types.Step {
	if strings.TrimSpace(s.PendingQuestion) != "" {
		return types.StepHumanInput
	}
	if strings.TrimSpace(s.LastCheckpointID) != "" {
		return types.StepValidate
	}
	if s.GenerationComplete {
		return types.StepComplete
	}
	return types.StepAgent
}

// RouteAfterValidation picks the step after validation. A passing validation
// always proceeds to checkpoint. A failing one goes back to the agent for a
// fix while the fix budget lasts, and completes with a degraded document
// once it is spent. The caller increments FixAttempts when this returns
// StepAgent.
func RouteAfterValidation(s types.WorkflowState) types.Step {
	if s.Validation == types.ValidationPassed {
		return types.StepCheckpoint
	}
	if s.FixAttempts < MaxFixAttempts {
		return types.StepAgent
	}
	return types.StepComplete
}

// RouteAfterError picks the step after the error handler: rollback when a
// checkpoint exists and retries remain, otherwise complete.
func RouteAfterError(s types.WorkflowState) types.Step {
	if strings.TrimSpace(s.LastCheckpointID) != "" && s.RetryCount < MaxRetryAttempts {
		return types.StepRollback
	}
	return types.StepComplete
}

// RouteAfterCheckpoint picks the step after a chapter is confirmed.
func RouteAfterCheckpoint(s types.WorkflowState) types.Step {
	if s.GenerationComplete {
		return types.StepComplete
	}
	return types.StepAgent
}

// ShouldRetryConversion reports whether a failed conversion may be retried.
func ShouldRetryConversion(s types.WorkflowState) Decision {
	if s.RetryCount < MaxRetryAttempts {
		return DecisionRetry
	}
	return DecisionFail
}
