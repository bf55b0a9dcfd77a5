package nodes

import (
	"context"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/hooks"
	"github.com/anthropics/agent-orchestrator/internal/observability"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// CompletionNode is the terminal node: it emits workflow_complete, writes
// the handoff brief, and stops the run.
type CompletionNode struct {
	Deps *Deps

	// WriteHandoff persists the rendered brief (e.g. to
	// <project>/.workflow/HANDOFF.md). nil skips persistence.
	WriteHandoff func(markdown string) error

	Aggregator *observability.ErrorAggregator
}

func (n *CompletionNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	success := len(state.FailedTaskIDs) == 0

	brief := observability.HandoffBrief{
		ProjectName: n.Deps.ProjectName,
		FinalPhase:  int(workflow.PhaseCompletion),
		Success:     success,
	}
	for _, t := range state.Tasks {
		summary := observability.TaskSummary{ID: t.ID, Title: t.Title, Error: t.Error}
		switch t.Status {
		case workflow.TaskCompleted:
			summary.Status = string(t.Status)
			brief.CompletedTasks = append(brief.CompletedTasks, summary)
		case workflow.TaskFailed:
			summary.Status = string(t.Status)
			brief.FailedTasks = append(brief.FailedTasks, summary)
		}
	}
	if n.Aggregator != nil {
		brief.UnresolvedErrs = n.Aggregator.Summary()
	}

	if n.WriteHandoff != nil {
		_ = n.WriteHandoff(brief.Render())
	}

	n.Deps.runHook(ctx, hooks.OnComplete, map[string]any{
		"success": success, "completed_tasks": len(brief.CompletedTasks), "failed_tasks": len(brief.FailedTasks),
	})

	if n.Deps.Events != nil {
		_ = n.Deps.Events.EmitNow(ctx, events.NewWorkflowComplete(n.Deps.ProjectName, success, int(workflow.PhaseCompletion), map[string]any{
			"completed_tasks": len(brief.CompletedTasks),
			"failed_tasks":    len(brief.FailedTasks),
		}))
		_ = n.Deps.Events.Close(ctx)
	}

	delta := workflow.WorkflowState{
		CurrentPhase: int(workflow.PhaseCompletion),
		NextDecision: workflow.DecisionContinue,
	}
	if !success {
		delta.NextDecision = workflow.DecisionNone
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Stop()}
}
