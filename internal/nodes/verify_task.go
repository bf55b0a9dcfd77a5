package nodes

import (
	"context"
	"time"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// VerifyTaskNode independently re-runs a just-implemented task's test files
// once more before trusting the iteration loop's self-reported success,
// since the loop's completion token is only a hint (internal/loop's
// CompletionToken doc comment: "its appearance is only a hint"). A task
// that fails this re-check is demoted back to pending (or failed, once its
// attempt budget is spent) rather than counted complete.
type VerifyTaskNode struct{ Deps *Deps }

func (n *VerifyTaskNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	taskID := state.CurrentTaskID
	task, found := state.TaskByID(taskID)
	if !found || task.Status != workflow.TaskCompleted {
		return graph.NodeResult[workflow.WorkflowState]{Delta: workflow.WorkflowState{}, Route: graph.Goto("select-task")}
	}

	if ok, message := recheckTask(ctx, n.Deps, task); !ok {
		delta := downgradeTask(task, message)
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto(nextAfterDowngrade(delta))}
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: workflow.WorkflowState{}, Route: graph.Goto("select-task")}
}

// VerifyTasksParallelNode re-checks every task a parallel implementation
// batch just completed.
type VerifyTasksParallelNode struct{ Deps *Deps }

func (n *VerifyTasksParallelNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	ids := state.CurrentTaskIDs
	var updated []workflow.Task
	route := "select-task"
	for _, id := range ids {
		task, found := state.TaskByID(id)
		if !found || task.Status != workflow.TaskCompleted {
			continue
		}
		if ok, message := recheckTask(ctx, n.Deps, task); !ok {
			d := downgradeTask(task, message)
			updated = append(updated, d.Tasks...)
			if nextAfterDowngrade(d) == "fix-bug" {
				route = "fix-bug"
			}
		}
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: workflow.WorkflowState{Tasks: updated}, Route: graph.Goto(route)}
}

// recheckTask re-runs the task's declared test files, if the project
// defines a test runner and the task declares any. Tasks with no test
// files pass trivially, matching internal/loop's noTestsRequired handling.
func recheckTask(ctx context.Context, deps *Deps, task workflow.Task) (ok bool, message string) {
	if deps.RunTests == nil || len(task.TestFiles) == 0 {
		return true, ""
	}
	outcome, err := deps.RunTests(ctx, task.TestFiles, 60*time.Second)
	if err != nil {
		return false, err.Error()
	}
	if !outcome.AllPassed {
		return false, outcome.Summary
	}
	return true, ""
}

// nextAfterDowngrade decides whether a downgraded task still has retries of
// its own left (straight back to select-task) or has just exhausted its
// attempt budget, in which case it gets one pass through the fixer subgraph
// before the run gives up on it.
func nextAfterDowngrade(delta workflow.WorkflowState) string {
	if len(delta.FailedTaskIDs) > 0 {
		return "fix-bug"
	}
	return "select-task"
}

// downgradeTask reverses a premature TaskCompleted back to pending (or to
// failed once the attempt budget runs out), for a delta merged on top of
// CompletedTaskIDs that the reducer never un-sets; the task's own Status
// field, not membership in that set, is what callers must trust downstream.
func downgradeTask(task workflow.Task, message string) workflow.WorkflowState {
	updated := task
	updated.Attempts++
	updated.Error = message
	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if updated.Attempts < maxAttempts {
		updated.Status = workflow.TaskPending
		return workflow.WorkflowState{Tasks: []workflow.Task{updated}}
	}
	updated.Status = workflow.TaskFailed
	return workflow.WorkflowState{
		Tasks:         []workflow.Task{updated},
		FailedTaskIDs: map[string]struct{}{task.ID: {}},
	}
}
