package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// PlanningNode drives phase 1: it invokes the planner agent and decodes its
// reply into the Plan envelope spec.md §6 requires (plan_name, summary,
// phases, test_strategy, estimated_complexity).
type PlanningNode struct {
	Deps *Deps
}

func (n *PlanningNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	a, ok := n.Deps.agentFor("claude")
	if !ok {
		return escalateResult(workflow.PhasePlanning, "", "planning_error", "no planner agent configured")
	}

	prompt := fmt.Sprintf("Produce an implementation plan for project %q. Respond with a single JSON object: "+
		"{plan_name, summary, phases: [{name, description, task_titles}], "+
		"test_strategy: {unit_tests, integration_tests, test_commands}, estimated_complexity}.",
		n.Deps.ProjectName)

	runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	res, err := a.Invoke(runCtx, agent.InvokeRequest{Kind: "claude", Prompt: prompt, Timeout: 10 * time.Minute})
	if err != nil || !res.Success {
		return retryOrEscalate(state, workflow.PhasePlanning, "", "planning_error", describeAgentFailure(err, res))
	}

	raw, jerr := agent.ExtractJSON(res.Stdout)
	if jerr != nil {
		return retryOrEscalate(state, workflow.PhasePlanning, "", "planning_error", "no plan envelope found in planner output")
	}
	var plan workflow.Plan
	if derr := json.Unmarshal(raw, &plan); derr != nil {
		return retryOrEscalate(state, workflow.PhasePlanning, "", "planning_error", "malformed plan envelope: "+derr.Error())
	}

	now := time.Now().UTC()
	delta := workflow.WorkflowState{
		Plan:         &plan,
		CurrentPhase: int(workflow.PhaseValidation),
		PhaseStatus: map[int]*workflow.PhaseState{
			int(workflow.PhasePlanning):   {Status: workflow.PhaseCompleted, CompletedAt: &now},
			int(workflow.PhaseValidation): {Status: workflow.PhaseInProgress, StartedAt: &now},
		},
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("validate")}
}

func describeAgentFailure(err error, res agent.InvokeResult) string {
	if err != nil {
		return err.Error()
	}
	if res.Error != "" {
		return string(res.Error)
	}
	return "agent invocation failed"
}
