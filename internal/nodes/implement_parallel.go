package nodes

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
	"github.com/anthropics/agent-orchestrator/internal/workspace"
)

// ImplementTasksParallelNode runs a batch of independent tasks concurrently,
// each isolated in its own git worktree, then merges them back into the
// project's working tree sequentially in task-id order so a conflicting
// merge never corrupts a sibling's result. Grounded on
// orchestrator/langgraph/subgraphs/task_graph.py's worktree-per-task
// parallel path.
type ImplementTasksParallelNode struct {
	Deps      *Deps
	Worktrees *workspace.Manager
}

type taskOutcome struct {
	task   workflow.Task
	wt     *workspace.Worktree
	result taskRunResult
}

type taskRunResult struct {
	ok      bool
	message string
}

func (n *ImplementTasksParallelNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	ids := state.CurrentTaskIDs
	if len(ids) == 0 {
		return escalateResult(workflow.PhaseImplementation, "", "implementation_error", "implement-tasks-parallel reached with no selected batch")
	}

	wtMgr := n.Worktrees
	if wtMgr == nil {
		wtMgr = &workspace.Manager{ProjectDir: n.Deps.ProjectDir}
	}

	outcomes := make([]taskOutcome, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		task, found := state.TaskByID(id)
		if !found {
			outcomes[i] = taskOutcome{task: workflow.Task{ID: id}, result: taskRunResult{ok: false, message: "task not found"}}
			continue
		}
		wg.Add(1)
		go func(idx int, t workflow.Task) {
			defer wg.Done()
			outcomes[idx] = n.runOne(ctx, wtMgr, t)
		}(i, task)
	}
	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].task.ID < outcomes[j].task.ID })

	// Merging is sequential and in task-id order even though the loops ran
	// concurrently: two goroutines calling git against the same project
	// directory at once would race, so every worktree's changes land in
	// the project branch one at a time here, after all loops finish.
	for i := range outcomes {
		o := &outcomes[i]
		if !o.result.ok || o.wt == nil {
			continue
		}
		if mergeErr := wtMgr.Merge(ctx, o.wt); mergeErr != nil {
			o.result = taskRunResult{ok: false, message: fmt.Sprintf("merge failed: %v", mergeErr)}
			continue
		}
		_ = wtMgr.Remove(ctx, o.wt)
	}

	var updated []workflow.Task
	completed := map[string]struct{}{}
	failed := map[string]struct{}{}
	for _, o := range outcomes {
		t := o.task
		if o.result.ok {
			t.Status = workflow.TaskCompleted
			completed[t.ID] = struct{}{}
		} else {
			t.Attempts++
			t.Error = o.result.message
			maxAttempts := t.MaxAttempts
			if maxAttempts <= 0 {
				maxAttempts = 3
			}
			if t.Attempts < maxAttempts {
				t.Status = workflow.TaskPending
			} else {
				t.Status = workflow.TaskFailed
				failed[t.ID] = struct{}{}
			}
		}
		updated = append(updated, t)
	}

	delta := workflow.WorkflowState{
		Tasks:            updated,
		CompletedTaskIDs: completed,
		FailedTaskIDs:    failed,
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("verify-tasks-parallel")}
}

// runOne creates a worktree and runs the task's iteration loop inside it.
// It never merges or removes the worktree itself: git operations against
// the shared project directory are done back in Run, sequentially, once
// every concurrent loop has finished.
func (n *ImplementTasksParallelNode) runOne(ctx context.Context, wtMgr *workspace.Manager, task workflow.Task) taskOutcome {
	wt, err := wtMgr.Create(ctx, task.ID)
	if err != nil {
		return taskOutcome{task: task, result: taskRunResult{ok: false, message: err.Error()}}
	}

	isolatedDeps := *n.Deps
	isolatedDeps.ProjectDir = wt.Path
	result, runErr := runTaskLoop(ctx, &isolatedDeps, task)

	outcome := taskOutcome{task: task, wt: wt}
	if runErr != nil {
		outcome.result = taskRunResult{ok: false, message: runErr.Error()}
		_ = wtMgr.Remove(ctx, wt)
		outcome.wt = nil
		return outcome
	}
	if !result.Success {
		outcome.result = taskRunResult{ok: false, message: result.Error}
		_ = wtMgr.Remove(ctx, wt)
		outcome.wt = nil
		return outcome
	}

	outcome.result = taskRunResult{ok: true}
	return outcome
}
