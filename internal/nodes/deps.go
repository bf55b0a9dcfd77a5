// Package nodes implements the graph.Node[workflow.WorkflowState] values
// that make up the orchestrator's phases: planning, the dual-reviewer
// validation/verification protocol, the task subgraph, quality/security
// gates, error dispatch, and completion. Grounded on
// orchestrator/langgraph/nodes/* and orchestrator/langgraph/subgraphs/*.
package nodes

import (
	"context"
	"time"

	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/budget"
	"github.com/anthropics/agent-orchestrator/internal/config"
	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/hooks"
	"github.com/anthropics/agent-orchestrator/internal/loop"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// Deps bundles the collaborators every node needs: the agent pool keyed by
// kind ("claude", "cursor", "gemini"), the budget manager, the event
// emitter, and the resolved project config. One Deps is shared by every
// node instance wired into the engine for a project run.
type Deps struct {
	ProjectName string
	ProjectDir  string

	Agents map[string]agent.Agent
	Budget *budget.Manager
	Events *events.Emitter
	Config config.Config

	// Hooks runs .workflow/hooks/<name>.sh scripts at lifecycle points; nil
	// disables hook execution entirely.
	Hooks *hooks.Runner

	// RunTests executes the project's test command; nil disables test
	// verification (loop.Loop treats that as "no tests required").
	RunTests func(ctx context.Context, testFiles []string, timeout time.Duration) (loop.TestOutcome, error)
}

// runHook invokes a lifecycle hook if one is configured, swallowing the
// no-op case (no Hooks runner, or no script for that name) the same way a
// disabled emitter is swallowed elsewhere in this package. Hook failures are
// logged into the caller's error path by the caller, not here, since a hook
// erroring is never itself fatal to a node's own work.
func (d *Deps) runHook(ctx context.Context, name hooks.Name, vars map[string]any) (stop bool) {
	if d.Hooks == nil {
		return false
	}
	stop, _ = d.Hooks.Run(ctx, name, vars)
	return stop
}

// newError builds a workflow.WorkflowError stamped now, for the append-only
// Errors list.
func newError(errType, message, taskID string, phase int) workflow.WorkflowError {
	return workflow.WorkflowError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now().UTC(),
		TaskID:    taskID,
		Phase:     phase,
	}
}

func (d *Deps) agentFor(kind string) (agent.Agent, bool) {
	a, ok := d.Agents[kind]
	return a, ok
}
