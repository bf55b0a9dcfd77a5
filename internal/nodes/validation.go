package nodes

import (
	"context"
	"fmt"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

func planSummaryPrompt(plan *workflow.Plan) string {
	if plan == nil {
		return "No plan was produced."
	}
	return fmt.Sprintf("Plan %q: %s (estimated complexity: %s, %d phases)",
		plan.PlanName, plan.Summary, plan.EstimatedComplexity, len(plan.Phases))
}

// ValidateNode runs the cursor and gemini reviewers concurrently against the
// plan (phase 2) and hands both results to merge-validation in a single
// step, instead of chaining one reviewer call after the other the way a
// Goto-only sequence would. See runReviewersConcurrently.
type ValidateNode struct{ Deps *Deps }

func (n *ValidateNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	prompt := "Review this implementation plan for soundness and completeness. " + planSummaryPrompt(state.Plan) +
		"\nRespond with JSON: {approved, score (0-10), assessment, concerns, blocking_issues, summary}."
	feedback, errs := runReviewersConcurrently(ctx, n.Deps, prompt, workflow.PhaseValidation, "validation_failed")

	delta := workflow.WorkflowState{Errors: errs}
	if len(feedback) > 0 {
		delta.ValidationFeedback = feedback
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("merge-validation")}
}

// MergeValidationNode applies the dual-reviewer fan-in policy to
// ValidationFeedback and decides whether phase 2 passes, retries, or
// escalates.
type MergeValidationNode struct{ Deps *Deps }

func (n *MergeValidationNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	outcome := mergeReviews(state.ValidationFeedback, n.Deps.Config.Review)
	threshold := n.Deps.Config.Validation.ValidationThreshold
	approved := outcome.Approved && outcome.Feedback.Score >= threshold

	now := now()
	if outcome.Decision == workflow.DecisionEscalate {
		return escalateResult(workflow.PhaseValidation, "", "validation_failed", outcome.FallbackReason)
	}

	if !approved {
		return retryOrEscalate(state, workflow.PhaseValidation, "", "validation_failed",
			fmt.Sprintf("plan not approved: %s", outcome.Feedback.Summary))
	}

	delta := workflow.WorkflowState{
		CurrentPhase: int(workflow.PhaseImplementation),
		PhaseStatus: map[int]*workflow.PhaseState{
			int(workflow.PhaseValidation):     {Status: workflow.PhaseCompleted, CompletedAt: &now},
			int(workflow.PhaseImplementation): {Status: workflow.PhaseInProgress, StartedAt: &now},
		},
		NextDecision: workflow.DecisionContinue,
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("task-breakdown")}
}
