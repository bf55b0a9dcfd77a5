package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/agent-orchestrator/graph/emit"
	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

func TestTaskBreakdownNode_NoAgentEscalates(t *testing.T) {
	node := &TaskBreakdownNode{Deps: &Deps{}}
	result := node.Run(context.Background(), workflow.WorkflowState{})
	assert.Equal(t, "error-dispatch", result.Route.To)
	assert.Equal(t, workflow.DecisionEscalate, result.Delta.NextDecision)
}

func TestTaskBreakdownNode_AgentFailureRetriesOrEscalates(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: false, Error: "down"}}}
	node := &TaskBreakdownNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{Plan: &workflow.Plan{}}
	result := node.Run(context.Background(), state)
	assert.NotEqual(t, "select-task", result.Route.To)
}

func TestTaskBreakdownNode_UnparsableOutputRetriesOrEscalates(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: true, Stdout: "no json"}}}
	node := &TaskBreakdownNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{Plan: &workflow.Plan{}}
	result := node.Run(context.Background(), state)
	assert.NotEqual(t, "select-task", result.Route.To)
}

func TestTaskBreakdownNode_SuccessProducesPendingTasksWithDefaultAttempts(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{
		{Success: true, Stdout: `{"tasks":[{"id":"t1","title":"build thing"},{"id":"t2","title":"ship it","max_attempts":5}]}`},
	}}
	node := &TaskBreakdownNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{Plan: &workflow.Plan{Phases: []workflow.PlanPhase{{}}}}

	result := node.Run(context.Background(), state)

	assert.Equal(t, "select-task", result.Route.To)
	require.Len(t, result.Delta.Tasks, 2)
	assert.Equal(t, workflow.TaskPending, result.Delta.Tasks[0].Status)
	assert.Equal(t, 3, result.Delta.Tasks[0].MaxAttempts)
	assert.Equal(t, 5, result.Delta.Tasks[1].MaxAttempts)
}

func TestTaskBreakdownNode_EmitsTasksCreatedEvent(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{
		{Success: true, Stdout: `{"tasks":[{"id":"t1","title":"build thing"}]}`},
	}}
	emitter := events.NewEmitter(emit.NewNullEmitter(), "demo")
	var captured events.Event
	emitter.AddCallback(func(ev events.Event) { captured = ev })

	node := &TaskBreakdownNode{Deps: &Deps{
		ProjectName: "demo",
		Agents:      map[string]agent.Agent{"claude": fake},
		Events:      emitter,
	}}
	state := workflow.WorkflowState{Plan: &workflow.Plan{Phases: []workflow.PlanPhase{{}}}}

	node.Run(context.Background(), state)

	assert.Equal(t, "demo", captured.ProjectName)
}
