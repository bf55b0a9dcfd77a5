package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// WriteTestsNode asks the coding agent to author the failing tests a task's
// acceptance criteria imply, before any implementation code is written,
// grounded on orchestrator/langgraph/nodes/task/nodes.py's test-first step
// ahead of implement_task_node.
type WriteTestsNode struct{ Deps *Deps }

func (n *WriteTestsNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	ids := taskBatch(state)
	if len(ids) == 0 {
		return escalateResult(workflow.PhaseImplementation, "", "implementation_error", "write-tests reached with no selected task")
	}

	a, ok := n.Deps.agentFor("claude")
	if !ok {
		return escalateResult(workflow.PhaseImplementation, ids[0], "implementation_error", "no implementation agent configured")
	}

	for _, id := range ids {
		task, found := state.TaskByID(id)
		if !found {
			continue
		}
		prompt := fmt.Sprintf("Write failing tests for task %q (%s) covering: %v. Test files: %v. Do not implement the feature yet.",
			task.ID, task.Title, task.AcceptanceCriteria, task.TestFiles)

		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		res, err := a.Invoke(runCtx, agent.InvokeRequest{Kind: "claude", Prompt: prompt, Timeout: 5 * time.Minute})
		cancel()
		if err != nil || !res.Success {
			return retryOrEscalate(state, workflow.PhaseImplementation, id, "implementation_error", describeAgentFailure(err, res))
		}
	}

	route := "implement-task"
	if len(ids) > 1 {
		route = "implement-tasks-parallel"
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: workflow.WorkflowState{}, Route: graph.Goto(route)}
}

// taskBatch returns the task ids select-task staged for this tick, whether
// it staged one (CurrentTaskID) or several (CurrentTaskIDs).
func taskBatch(state workflow.WorkflowState) []string {
	if len(state.CurrentTaskIDs) > 0 {
		return state.CurrentTaskIDs
	}
	if state.CurrentTaskID != "" {
		return []string{state.CurrentTaskID}
	}
	return nil
}
