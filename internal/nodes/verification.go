package nodes

import (
	"context"
	"fmt"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

func implementationSummaryPrompt(state workflow.WorkflowState) string {
	completed := len(state.CompletedTaskIDs)
	return fmt.Sprintf("Project %q: %d/%d tasks completed. Review the implementation against the plan and acceptance criteria.",
		state.ProjectName, completed, len(state.Tasks))
}

// VerifyNode runs the cursor and gemini reviewers concurrently against the
// finished implementation (phase 4) and hands both results to
// merge-verification in a single step. See runReviewersConcurrently.
type VerifyNode struct{ Deps *Deps }

func (n *VerifyNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	prompt := implementationSummaryPrompt(state) + "\nRespond with JSON: {approved, score (0-10), assessment, concerns, blocking_issues, summary}."
	feedback, errs := runReviewersConcurrently(ctx, n.Deps, prompt, workflow.PhaseVerification, "verification_failed")

	delta := workflow.WorkflowState{Errors: errs}
	if len(feedback) > 0 {
		delta.VerificationFeedback = feedback
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("merge-verification")}
}

// MergeVerificationNode applies the dual-reviewer fan-in policy to
// VerificationFeedback and decides whether phase 4 passes to the quality
// gate, retries, or escalates.
type MergeVerificationNode struct{ Deps *Deps }

func (n *MergeVerificationNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	outcome := mergeReviews(state.VerificationFeedback, n.Deps.Config.Review)
	threshold := n.Deps.Config.Validation.VerificationThreshold
	approved := outcome.Approved && outcome.Feedback.Score >= threshold

	if outcome.Decision == workflow.DecisionEscalate {
		return escalateResult(workflow.PhaseVerification, "", "verification_failed", outcome.FallbackReason)
	}

	if !approved {
		return retryOrEscalate(state, workflow.PhaseVerification, "", "verification_failed",
			fmt.Sprintf("implementation not approved: %s", outcome.Feedback.Summary))
	}

	delta := workflow.WorkflowState{NextDecision: workflow.DecisionContinue}
	if n.Deps.Config.Workflow.Features.CoverageCheck {
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("quality-gate")}
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("completion")}
}
