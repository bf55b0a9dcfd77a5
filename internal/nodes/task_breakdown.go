package nodes

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// TaskBreakdownNode turns the approved plan into a flat, dependency-ordered
// task list, grounded on orchestrator/langgraph/nodes/task's planning ->
// task breakdown handoff.
type TaskBreakdownNode struct{ Deps *Deps }

type taskEnvelope struct {
	Tasks []workflow.Task `json:"tasks"`
}

func (n *TaskBreakdownNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	a, ok := n.Deps.agentFor("claude")
	if !ok {
		return escalateResult(workflow.PhaseImplementation, "", "implementation_error", "no task-breakdown agent configured")
	}

	prompt := "Break the approved plan into an ordered list of implementation tasks. " + planSummaryPrompt(state.Plan) +
		"\nRespond with JSON: {tasks: [{id, title, user_story, acceptance_criteria, files_to_create, " +
		"files_to_modify, test_files, dependencies, max_attempts}]}."

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	res, err := a.Invoke(runCtx, agent.InvokeRequest{Kind: "claude", Prompt: prompt, Timeout: 5 * time.Minute})
	if err != nil || !res.Success {
		return retryOrEscalate(state, workflow.PhaseImplementation, "", "implementation_error", describeAgentFailure(err, res))
	}

	raw, jerr := agent.ExtractJSON(res.Stdout)
	if jerr != nil {
		return retryOrEscalate(state, workflow.PhaseImplementation, "", "implementation_error", "no task envelope found")
	}
	var env taskEnvelope
	if derr := json.Unmarshal(raw, &env); derr != nil {
		return retryOrEscalate(state, workflow.PhaseImplementation, "", "implementation_error", "malformed task envelope: "+derr.Error())
	}

	for i := range env.Tasks {
		env.Tasks[i].Status = workflow.TaskPending
		if env.Tasks[i].MaxAttempts == 0 {
			env.Tasks[i].MaxAttempts = 3
		}
	}

	if n.Deps.Events != nil {
		_ = n.Deps.Events.EmitNow(ctx, events.NewTasksCreated(n.Deps.ProjectName, len(env.Tasks), len(state.Plan.Phases), int(workflow.PhaseImplementation)))
	}

	delta := workflow.WorkflowState{Tasks: env.Tasks}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("select-task")}
}
