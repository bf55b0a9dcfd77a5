package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

func TestPlanningNode_NoAgentEscalatesImmediately(t *testing.T) {
	node := &PlanningNode{Deps: &Deps{}}
	result := node.Run(context.Background(), workflow.WorkflowState{})
	assert.Equal(t, "error-dispatch", result.Route.To)
	assert.Equal(t, workflow.DecisionEscalate, result.Delta.NextDecision)
}

func TestPlanningNode_SuccessDecodesPlanAndAdvances(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{
		{Success: true, Stdout: `{"plan_name":"demo plan","summary":"build a thing","phases":[],"estimated_complexity":"medium"}`},
	}}
	node := &PlanningNode{Deps: &Deps{ProjectName: "demo", Agents: map[string]agent.Agent{"claude": fake}}}

	result := node.Run(context.Background(), workflow.WorkflowState{})

	assert.Equal(t, "validate", result.Route.To)
	require.NotNil(t, result.Delta.Plan)
	assert.Equal(t, "demo plan", result.Delta.Plan.PlanName)
	assert.Equal(t, int(workflow.PhaseValidation), result.Delta.CurrentPhase)
	planningState := result.Delta.PhaseStatus[int(workflow.PhasePlanning)]
	require.NotNil(t, planningState)
	assert.Equal(t, workflow.PhaseCompleted, planningState.Status)
}

func TestPlanningNode_AgentFailureRetriesOrEscalates(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: false, Error: "crashed"}}}
	node := &PlanningNode{Deps: &Deps{ProjectName: "demo", Agents: map[string]agent.Agent{"claude": fake}}}

	result := node.Run(context.Background(), workflow.WorkflowState{})
	assert.NotEqual(t, workflow.DecisionContinue, result.Delta.NextDecision)
}

func TestPlanningNode_UnparsableOutputRetriesOrEscalates(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: true, Stdout: "not json at all"}}}
	node := &PlanningNode{Deps: &Deps{ProjectName: "demo", Agents: map[string]agent.Agent{"claude": fake}}}

	result := node.Run(context.Background(), workflow.WorkflowState{})
	assert.NotEqual(t, workflow.DecisionContinue, result.Delta.NextDecision)
}

func TestDescribeAgentFailure_PrefersError(t *testing.T) {
	assert.Equal(t, "boom", describeAgentFailure(assertError("boom"), agent.InvokeResult{}))
	assert.Equal(t, "timeout", describeAgentFailure(nil, agent.InvokeResult{Error: "timeout"}))
	assert.Equal(t, "agent invocation failed", describeAgentFailure(nil, agent.InvokeResult{}))
}

func assertError(msg string) error {
	return &testError{msg: msg}
}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
