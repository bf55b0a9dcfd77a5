package nodes

import (
	"context"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/escalation"
	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/hooks"
	"github.com/anthropics/agent-orchestrator/internal/observability"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// ErrorDispatchNode is the sink every escalateResult/retryOrEscalate call
// routes to once a phase's retry budget is exhausted. In interactive mode
// it suspends the run and asks a human; in autonomous mode it applies
// escalation.Decide's bounded-retry policy itself. Grounded on
// orchestrator/langgraph/nodes/escalation.py.
type ErrorDispatchNode struct {
	Deps *Deps

	// Aggregator, when set, records every dispatched error so
	// CompletionNode can render the unresolved-error table in the handoff
	// brief. nil skips recording.
	Aggregator *observability.ErrorAggregator
}

func (n *ErrorDispatchNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	lastErr := lastError(state)

	if lastErr != nil {
		n.Deps.runHook(ctx, hooks.OnError, map[string]any{
			"error_type": lastErr.Type, "message": lastErr.Message, "task_id": lastErr.TaskID, "phase": lastErr.Phase,
		})
		if n.Aggregator != nil {
			n.Aggregator.Record(lastErr.Type, lastErr.Message, lastErr.Phase, lastErr.TaskID, lastErr.Timestamp)
		}
	}

	if resp, ok := workflow.HumanInputFromContext(ctx); ok {
		if hr, ok := resp.(escalation.Response); ok {
			return applyResponse(state, hr, lastErr)
		}
	}

	if state.ExecutionMode == workflow.ModeInteractive {
		question := escalation.Question{
			Project: n.Deps.ProjectName,
			Options: escalation.StandardOptions,
		}
		if lastErr != nil {
			question.ErrorType = lastErr.Type
			question.Message = lastErr.Message
			question.Phase = lastErr.Phase
			question.TaskID = lastErr.TaskID
		}
		if n.Deps.Events != nil {
			_ = n.Deps.Events.EmitNow(ctx, events.NewEscalation(n.Deps.ProjectName, question.Message, "error-dispatch", question.Options, nil))
		}
		return graph.NodeResult[workflow.WorkflowState]{
			Delta: workflow.WorkflowState{},
			Route: graph.Interrupted(question, "error-dispatch"),
		}
	}

	phase := state.CurrentPhase
	if lastErr != nil {
		phase = lastErr.Phase
	}
	resp := escalation.Decide(phase, state.IterationCount, n.Deps.Config.Retry.MaxTaskLoopIterations)
	return applyResponse(state, resp, lastErr)
}

func lastError(state workflow.WorkflowState) *workflow.WorkflowError {
	if len(state.Errors) == 0 {
		return nil
	}
	e := state.Errors[len(state.Errors)-1]
	return &e
}

// applyResponse turns a human (or autonomous) decision into a NodeResult.
func applyResponse(state workflow.WorkflowState, resp escalation.Response, lastErr *workflow.WorkflowError) graph.NodeResult[workflow.WorkflowState] {
	switch resp.Action {
	case escalation.ActionRetry:
		target := phaseEntryNode(workflow.Phase(state.CurrentPhase))
		if lastErr != nil {
			target = phaseEntryNode(workflow.Phase(lastErr.Phase))
		}
		delta := workflow.WorkflowState{
			NextDecision:   workflow.DecisionRetry,
			IterationCount: state.IterationCount + 1,
		}
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto(target)}

	case escalation.ActionSkip:
		delta := workflow.WorkflowState{NextDecision: workflow.DecisionContinue, ReviewSkipped: true}
		target := "select-task"
		if resp.TargetPhase > 0 {
			delta.CurrentPhase = resp.TargetPhase
			target = phaseEntryNode(workflow.Phase(resp.TargetPhase))
		}
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto(target)}

	case escalation.ActionContinue:
		delta := workflow.WorkflowState{NextDecision: workflow.DecisionContinue}
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("select-task")}

	case escalation.ActionAnswerClarification:
		delta := workflow.WorkflowState{NextDecision: workflow.DecisionRetry}
		target := "planning"
		if resp.TargetPhase > 0 {
			target = phaseEntryNode(workflow.Phase(resp.TargetPhase))
		}
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto(target)}

	default: // escalation.ActionAbort and anything unrecognized
		delta := workflow.WorkflowState{NextDecision: workflow.DecisionAbort}
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Stop()}
	}
}
