package nodes

import (
	"time"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// escalateResult builds a NodeResult that records errType/message and
// routes straight to error-dispatch, for failures the node considers
// non-recoverable (spec.md §7 "Errors marked non-recoverable by the node:
// escalate directly").
func escalateResult(phase workflow.Phase, taskID, errType, message string) graph.NodeResult[workflow.WorkflowState] {
	delta := workflow.WorkflowState{
		NextDecision: workflow.DecisionEscalate,
		Errors:       []workflow.WorkflowError{newError(errType, message, taskID, int(phase))},
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("error-dispatch")}
}

// retryOrEscalate implements spec.md §7's recovery policy: an error inside a
// node is retried against the phase's retry budget, and escalated once that
// budget is exhausted.
func retryOrEscalate(state workflow.WorkflowState, phase workflow.Phase, taskID, errType, message string) graph.NodeResult[workflow.WorkflowState] {
	phaseState := state.PhaseStatus[int(phase)]
	attempts := 1
	maxAttempts := 3
	if phaseState != nil {
		attempts = phaseState.Attempts + 1
		if phaseState.MaxAttempts > 0 {
			maxAttempts = phaseState.MaxAttempts
		}
	}

	delta := workflow.WorkflowState{
		Errors: []workflow.WorkflowError{newError(errType, message, taskID, int(phase))},
		PhaseStatus: map[int]*workflow.PhaseState{
			int(phase): {Status: workflow.PhaseInProgress, Attempts: attempts, MaxAttempts: maxAttempts},
		},
	}

	if attempts >= maxAttempts {
		delta.NextDecision = workflow.DecisionEscalate
		delta.PhaseStatus[int(phase)].Status = workflow.PhaseFailed
		now := time.Now().UTC()
		delta.PhaseStatus[int(phase)].CompletedAt = &now
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("error-dispatch")}
	}

	delta.NextDecision = workflow.DecisionRetry
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto(phaseEntryNode(phase))}
}

// phaseEntryNode is the node a phase restarts at when retried.
func phaseEntryNode(phase workflow.Phase) string {
	switch phase {
	case workflow.PhasePlanning:
		return "planning"
	case workflow.PhaseValidation:
		return "validate"
	case workflow.PhaseImplementation:
		return "select-task"
	case workflow.PhaseVerification:
		return "verify"
	case workflow.PhaseCompletion:
		return "completion"
	default:
		return "error-dispatch"
	}
}
