package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/hooks"
	"github.com/anthropics/agent-orchestrator/internal/loop"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

var (
	errNoAgent     = errors.New("nodes: no implementation agent configured")
	errBudgetAbort = errors.New("nodes: task budget exhausted")
)

func errTaskFailed(reason string) error {
	return fmt.Errorf("nodes: iteration loop did not converge: %s", reason)
}

// ImplementTaskNode drives one task through the fresh-context iteration
// loop, grounded on orchestrator/langgraph/nodes/task/nodes.py's
// implement_task_node (budget check, attempt increment, loop dispatch).
type ImplementTaskNode struct{ Deps *Deps }

func (n *ImplementTaskNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	taskID := state.CurrentTaskID
	task, found := state.TaskByID(taskID)
	if !found {
		return escalateResult(workflow.PhaseImplementation, taskID, "implementation_error", "selected task not found")
	}

	result, err := n.runLoop(ctx, task)
	if errors.Is(err, errBudgetAbort) {
		return escalateResult(workflow.PhaseImplementation, taskID, "budget_exceeded", "task budget exhausted, aborting implementation")
	}
	if errors.Is(err, errNoAgent) {
		return escalateResult(workflow.PhaseImplementation, taskID, "implementation_error", err.Error())
	}
	if err == nil {
		return graph.NodeResult[workflow.WorkflowState]{
			Delta: settleTask(ctx, n.Deps, task, result),
			Route: graph.Goto("verify-task"),
		}
	}

	return graph.NodeResult[workflow.WorkflowState]{
		Delta: retryOrFailTask(ctx, n.Deps, task, err.Error()),
		Route: graph.Goto("select-task"),
	}
}

// retryOrFailTask implements the task-scoped bounded-retry rule: a task
// gets up to MaxAttempts tries of its own iteration loop before it is
// marked TaskFailed, independently of the phase-level retry budget
// retryOrEscalate enforces. A failed task never escalates the whole phase
// by itself (§4.7 "a single failed merge marks only that task failed");
// select-task's allTasksSettled check is what eventually moves the
// workflow on once every task has reached a terminal state.
func retryOrFailTask(ctx context.Context, deps *Deps, task workflow.Task, message string) workflow.WorkflowState {
	attempts := task.Attempts + 1
	maxAttempts := task.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	updated := task
	updated.Attempts = attempts
	updated.Error = message

	if attempts < maxAttempts {
		updated.Status = workflow.TaskPending
		return workflow.WorkflowState{Tasks: []workflow.Task{updated}}
	}

	updated.Status = workflow.TaskFailed
	if deps.Events != nil {
		_ = deps.Events.Emit(ctx, events.NewTaskComplete(deps.ProjectName, task.ID, false, int(workflow.PhaseImplementation), message))
	}
	return workflow.WorkflowState{
		Tasks:         []workflow.Task{updated},
		FailedTaskIDs: map[string]struct{}{task.ID: {}},
	}
}

// runLoop checks the task's budget allowance and, if allowed, drives it
// through internal/loop.Loop.
func (n *ImplementTaskNode) runLoop(ctx context.Context, task workflow.Task) (loop.Result, error) {
	return runTaskLoop(ctx, n.Deps, task)
}

func runTaskLoop(ctx context.Context, deps *Deps, task workflow.Task) (loop.Result, error) {
	a, ok := deps.agentFor("claude")
	if !ok {
		return loop.Result{}, errNoAgent
	}

	if deps.Budget != nil {
		outcome := deps.Budget.Enforce(task.ID, deps.Config.Retry.Agent.InitialInterval)
		if outcome.ShouldAbort {
			return loop.Result{}, errBudgetAbort
		}
	}

	l := &loop.Loop{
		Agent:      a,
		AgentKind:  "claude",
		ProjectDir: deps.ProjectDir,
		RunTests:   deps.RunTests,
		Hooks:      deps.Hooks,
	}

	cfg := loop.DefaultConfig()
	cfg.MaxIterations = deps.Config.Retry.MaxTaskLoopIterations
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}

	loopTask := loop.Task{
		ID: task.ID, Title: task.Title, UserStory: task.UserStory,
		AcceptanceCriteria: task.AcceptanceCriteria,
		FilesToCreate:      task.FilesToCreate,
		FilesToModify:      task.FilesToModify,
		TestFiles:          task.TestFiles,
	}

	result := l.Run(ctx, loopTask, cfg)
	if deps.Events != nil {
		for _, ir := range result.PerIterationTestResults {
			_ = deps.Events.Emit(ctx, events.NewRalphIteration(deps.ProjectName, task.ID, ir.Iteration, cfg.MaxIterations, boolToInt(ir.Passed), 1))
		}
	}
	if !result.Success {
		if result.Error != "" {
			return result, errTaskFailed(result.Error)
		}
	}
	return result, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// settleTask marks task completed or failed in the delta's Tasks slice,
// appending it to CompletedTaskIDs or FailedTaskIDs. It copies the full
// Task rather than a bare {ID, Status} stub because mergeTasks replaces a
// task wholesale by id; a partial stub would wipe the task's title,
// acceptance criteria, and other fields on merge.
func settleTask(ctx context.Context, deps *Deps, task workflow.Task, result loop.Result) workflow.WorkflowState {
	updated := task
	updated.Error = result.Error
	delta := workflow.WorkflowState{}
	if result.Success {
		updated.Status = workflow.TaskCompleted
		delta.CompletedTaskIDs = map[string]struct{}{task.ID: {}}
	} else {
		updated.Status = workflow.TaskFailed
		delta.FailedTaskIDs = map[string]struct{}{task.ID: {}}
	}
	delta.Tasks = []workflow.Task{updated}

	if deps.Events != nil {
		_ = deps.Events.Emit(ctx, events.NewTaskComplete(deps.ProjectName, task.ID, result.Success, int(workflow.PhaseImplementation), result.Error))
	}
	deps.runHook(ctx, hooks.PostTask, map[string]any{"task_id": task.ID, "success": result.Success})
	return delta
}
