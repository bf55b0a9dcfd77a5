package nodes

import (
	"context"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/hooks"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// SelectTaskNode picks the next runnable task (or batch of tasks, when
// parallel implementation is enabled) and routes into the write-tests /
// implement step, grounded on orchestrator/langgraph/nodes/task/nodes.py's
// select_task_node.
type SelectTaskNode struct{ Deps *Deps }

func (n *SelectTaskNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	runnable := state.RunnableTasks()

	if len(runnable) == 0 {
		if allTasksSettled(state) {
			return graph.NodeResult[workflow.WorkflowState]{
				Delta: workflow.WorkflowState{NextDecision: workflow.DecisionContinue},
				Route: graph.Goto("verify"),
			}
		}
		// Runnable tasks exist in principle but every candidate is either
		// in flight or blocked on a failed dependency: nothing to do this
		// tick without risking a livelock, so escalate.
		return escalateResult(workflow.PhaseImplementation, "", "implementation_error",
			"no runnable tasks but implementation is incomplete (blocked dependency chain)")
	}

	batchWidth := n.Deps.Config.Workflow.MaxParallelTasks
	if batchWidth < 1 {
		batchWidth = 1
	}
	if batchWidth > len(runnable) {
		batchWidth = len(runnable)
	}
	batch := runnable[:batchWidth]

	// Mark each selected task TaskInProgress via the task-level Status
	// field rather than InFlightTaskIDs: the reducer only ever unions that
	// set and never clears it, so using it as the dispatch gate would
	// permanently exclude a task from re-selection the moment it's first
	// picked, even after a retry resets it to pending.
	ids := make([]string, 0, len(batch))
	updated := make([]workflow.Task, 0, len(batch))
	for _, t := range batch {
		ids = append(ids, t.ID)
		t.Status = workflow.TaskInProgress
		updated = append(updated, t)
		if n.Deps.Events != nil {
			_ = n.Deps.Events.Emit(ctx, events.NewTaskStart(n.Deps.ProjectName, t.ID, t.Title, int(workflow.PhaseImplementation)))
		}
		n.Deps.runHook(ctx, hooks.PreTask, map[string]any{"task_id": t.ID, "title": t.Title})
	}

	delta := workflow.WorkflowState{Tasks: updated}
	if len(ids) == 1 {
		delta.CurrentTaskID = ids[0]
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("write-tests")}
	}
	delta.CurrentTaskIDs = ids
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("write-tests")}
}

// allTasksSettled reports whether every task has reached a terminal state
// (completed or failed), meaning the implementation phase has nothing left
// to schedule.
func allTasksSettled(state workflow.WorkflowState) bool {
	for _, t := range state.Tasks {
		if t.Status != workflow.TaskCompleted && t.Status != workflow.TaskFailed {
			return false
		}
	}
	return true
}
