package nodes

import (
	"context"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/fixer"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// FixBugNode gives a task that has exhausted its own retry budget one more
// pass through the fixer subgraph (triage -> diagnose -> apply -> verify)
// before the run gives up on it entirely, grounded on
// orchestrator/langgraph/subgraphs/fixer_graph.py.
type FixBugNode struct {
	Deps    *Deps
	Fixer   *fixer.Fixer
	Breaker *fixer.CircuitBreaker
}

func (n *FixBugNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	taskID := firstFailedTaskID(state)
	if taskID == "" {
		return graph.NodeResult[workflow.WorkflowState]{Delta: workflow.WorkflowState{}, Route: graph.Goto("select-task")}
	}
	task, found := state.TaskByID(taskID)
	if !found {
		return graph.NodeResult[workflow.WorkflowState]{Delta: workflow.WorkflowState{}, Route: graph.Goto("select-task")}
	}

	breaker := n.Breaker
	if breaker == nil {
		breaker = fixer.NewCircuitBreaker(3)
	}
	f := n.Fixer
	if f == nil {
		a, _ := n.Deps.agentFor("claude")
		f = &fixer.Fixer{Agent: a, Breaker: breaker}
	}

	touchedFiles := append(append([]string{}, task.FilesToCreate...), task.FilesToModify...)
	outcome := f.Attempt(ctx, task.Title+": "+task.Error, touchedFiles, func(ctx context.Context) (bool, string) {
		return recheckTask(ctx, n.Deps, task)
	})

	attempt := &workflow.FixerAttempt{
		ErrorType:  "implementation_error",
		TaskID:     task.ID,
		Diagnosis:  outcome.Diagnosis.Cause,
		FixPlan:    outcome.Diagnosis.FixPlan,
		Researched: outcome.Researched,
		Validated:  outcome.Validated,
	}

	if outcome.CircuitOpen {
		result := escalateResult(workflow.PhaseImplementation, task.ID, "circuit_breaker_open", "fixer circuit breaker open, escalating")
		result.Delta.CircuitBreakerOpen = true
		return result
	}

	if !outcome.Fixed {
		result := escalateResult(workflow.PhaseImplementation, task.ID, "implementation_error", outcome.FinalMessage)
		result.Delta.FixerAttempt = attempt
		return result
	}

	updated := task
	updated.Status = workflow.TaskCompleted
	updated.Error = ""
	return graph.NodeResult[workflow.WorkflowState]{
		Delta: workflow.WorkflowState{
			Tasks:        []workflow.Task{updated},
			FixerAttempt: attempt,
		},
		Route: graph.Goto("select-task"),
	}
}

func firstFailedTaskID(state workflow.WorkflowState) string {
	for id := range state.FailedTaskIDs {
		if t, ok := state.TaskByID(id); ok && t.Status == workflow.TaskFailed {
			return id
		}
	}
	return ""
}
