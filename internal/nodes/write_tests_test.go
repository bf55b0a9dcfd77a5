package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

func TestTaskBatch_PrefersMultiple(t *testing.T) {
	state := workflow.WorkflowState{CurrentTaskIDs: []string{"t1", "t2"}, CurrentTaskID: "t3"}
	assert.Equal(t, []string{"t1", "t2"}, taskBatch(state))
}

func TestTaskBatch_FallsBackToSingle(t *testing.T) {
	assert.Equal(t, []string{"t1"}, taskBatch(workflow.WorkflowState{CurrentTaskID: "t1"}))
}

func TestTaskBatch_EmptyWhenNeitherSet(t *testing.T) {
	assert.Nil(t, taskBatch(workflow.WorkflowState{}))
}

func TestWriteTestsNode_NoSelectedTaskEscalates(t *testing.T) {
	node := &WriteTestsNode{Deps: &Deps{}}
	result := node.Run(context.Background(), workflow.WorkflowState{})
	assert.Equal(t, "error-dispatch", result.Route.To)
}

func TestWriteTestsNode_NoAgentEscalates(t *testing.T) {
	node := &WriteTestsNode{Deps: &Deps{}}
	state := workflow.WorkflowState{CurrentTaskID: "t1"}
	result := node.Run(context.Background(), state)
	assert.Equal(t, "error-dispatch", result.Route.To)
}

func TestWriteTestsNode_AgentFailureRetriesOrEscalates(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: false, Error: "boom"}}}
	node := &WriteTestsNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{
		CurrentTaskID: "t1",
		Tasks:         []workflow.Task{{ID: "t1"}},
	}
	result := node.Run(context.Background(), state)
	assert.NotEqual(t, "implement-task", result.Route.To)
}

func TestWriteTestsNode_SingleTaskRoutesToImplementTask(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: true, Stdout: "wrote tests"}}}
	node := &WriteTestsNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{
		CurrentTaskID: "t1",
		Tasks:         []workflow.Task{{ID: "t1", Title: "thing"}},
	}
	result := node.Run(context.Background(), state)
	assert.Equal(t, "implement-task", result.Route.To)
}

func TestWriteTestsNode_MultipleTasksRoutesToParallelImplementation(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{
		{Success: true, Stdout: "wrote tests 1"},
		{Success: true, Stdout: "wrote tests 2"},
	}}
	node := &WriteTestsNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{
		CurrentTaskIDs: []string{"t1", "t2"},
		Tasks:          []workflow.Task{{ID: "t1"}, {ID: "t2"}},
	}
	result := node.Run(context.Background(), state)
	assert.Equal(t, "implement-tasks-parallel", result.Route.To)
}

func TestWriteTestsNode_SkipsMissingTaskIDs(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: true, Stdout: "wrote tests"}}}
	node := &WriteTestsNode{Deps: &Deps{Agents: map[string]agent.Agent{"claude": fake}}}
	state := workflow.WorkflowState{
		CurrentTaskIDs: []string{"missing", "t1"},
		Tasks:          []workflow.Task{{ID: "t1"}},
	}
	result := node.Run(context.Background(), state)
	assert.Equal(t, "implement-tasks-parallel", result.Route.To)
}
