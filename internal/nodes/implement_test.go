package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/budget"
	"github.com/anthropics/agent-orchestrator/internal/config"
	"github.com/anthropics/agent-orchestrator/internal/loop"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

func TestImplementTaskNode_TaskNotFoundEscalates(t *testing.T) {
	node := &ImplementTaskNode{Deps: &Deps{}}
	result := node.Run(context.Background(), workflow.WorkflowState{CurrentTaskID: "missing"})
	assert.Equal(t, "error-dispatch", result.Route.To)
}

func TestImplementTaskNode_NoAgentEscalates(t *testing.T) {
	node := &ImplementTaskNode{Deps: &Deps{}}
	state := workflow.WorkflowState{CurrentTaskID: "t1", Tasks: []workflow.Task{{ID: "t1"}}}
	result := node.Run(context.Background(), state)
	assert.Equal(t, "error-dispatch", result.Route.To)
}

func TestImplementTaskNode_BudgetExhaustedEscalates(t *testing.T) {
	mgr := budget.NewManager("run-1", 0, 0, 0, false)
	node := &ImplementTaskNode{Deps: &Deps{
		Agents: map[string]agent.Agent{"claude": &scriptedAgent{}},
		Budget: mgr,
		Config: config.Config{Retry: config.RetryConfig{Agent: config.RetryPolicy{InitialInterval: 1.0}}},
	}}
	state := workflow.WorkflowState{CurrentTaskID: "t1", Tasks: []workflow.Task{{ID: "t1"}}}
	result := node.Run(context.Background(), state)
	assert.Equal(t, "error-dispatch", result.Route.To)
	require.Len(t, result.Delta.Errors, 1)
	assert.Equal(t, "budget_exceeded", result.Delta.Errors[0].Type)
}

func TestImplementTaskNode_SuccessRoutesToVerifyTask(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: true, Stdout: loop.CompletionToken}}}
	node := &ImplementTaskNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{CurrentTaskID: "t1", Tasks: []workflow.Task{{ID: "t1", Title: "build"}}}

	result := node.Run(context.Background(), state)

	assert.Equal(t, "verify-task", result.Route.To)
	require.Len(t, result.Delta.Tasks, 1)
	assert.Equal(t, workflow.TaskCompleted, result.Delta.Tasks[0].Status)
	_, ok := result.Delta.CompletedTaskIDs["t1"]
	assert.True(t, ok)
}

func TestImplementTaskNode_FailureUnderMaxAttemptsRetriesPending(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: false, Error: "crashed"}}}
	node := &ImplementTaskNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{
		CurrentTaskID: "t1",
		Tasks:         []workflow.Task{{ID: "t1", Title: "build", Attempts: 0, MaxAttempts: 3}},
	}

	result := node.Run(context.Background(), state)

	assert.Equal(t, "select-task", result.Route.To)
	require.Len(t, result.Delta.Tasks, 1)
	assert.Equal(t, workflow.TaskPending, result.Delta.Tasks[0].Status)
	assert.Equal(t, 1, result.Delta.Tasks[0].Attempts)
}

func TestImplementTaskNode_FailureAtMaxAttemptsFailsTask(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: false, Error: "crashed"}}}
	node := &ImplementTaskNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{
		CurrentTaskID: "t1",
		Tasks:         []workflow.Task{{ID: "t1", Title: "build", Attempts: 2, MaxAttempts: 3}},
	}

	result := node.Run(context.Background(), state)

	assert.Equal(t, "select-task", result.Route.To)
	require.Len(t, result.Delta.Tasks, 1)
	assert.Equal(t, workflow.TaskFailed, result.Delta.Tasks[0].Status)
	_, failed := result.Delta.FailedTaskIDs["t1"]
	assert.True(t, failed)
}

func TestRetryOrFailTask_DefaultsMaxAttemptsToThree(t *testing.T) {
	deps := &Deps{}
	delta := retryOrFailTask(context.Background(), deps, workflow.Task{ID: "t1", Attempts: 2}, "boom")
	assert.Equal(t, workflow.TaskFailed, delta.Tasks[0].Status)
}

func TestBoolToInt(t *testing.T) {
	assert.Equal(t, 1, boolToInt(true))
	assert.Equal(t, 0, boolToInt(false))
}
