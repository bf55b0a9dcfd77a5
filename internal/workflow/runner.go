package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/graph/emit"
	"github.com/anthropics/agent-orchestrator/graph/store"
)

// DefaultRecursionLimit is spec.md §4.1's "configured maximum number of node
// executions per run/resume invocation (default 100)".
const DefaultRecursionLimit = 100

// Runner compiles the node/edge graph once and drives WorkflowState through
// it, following the teacher's Engine[S]/Run/ResumeFromCheckpoint contract
// directly (graph.Engine[S] is kept unmodified here beyond the Interrupt
// routing mode added in graph/interrupt.go).
type Runner struct {
	engine *graph.Engine[WorkflowState]
	store  store.Store[WorkflowState]
}

// PolicyNode lets a graph.Node[WorkflowState] declare a graph.NodePolicy;
// the engine discovers it via a type assertion, so any node wanting retry or
// timeout behavior implements this alongside Node.
type PolicyNode interface {
	graph.Node[WorkflowState]
	Policy() graph.NodePolicy
}

// New builds a Runner over the given store and emitter, registers nodes and
// edges, and sets the start node. Nodes is keyed by node id; edges are plain
// unconditional or predicated Connect calls, matching spec.md §4.1's "two
// forms" of edge.
func New(st store.Store[WorkflowState], emitter emit.Emitter, startNode string, nodes map[string]graph.Node[WorkflowState], edges []Edge, opts ...graph.Option) (*Runner, error) {
	allOpts := append([]graph.Option{graph.WithMaxSteps(DefaultRecursionLimit)}, opts...)
	eng := graph.New[WorkflowState](Reduce, st, emitter, allOptsAsInterfaces(allOpts)...)

	for id, n := range nodes {
		if err := eng.Add(id, n); err != nil {
			return nil, fmt.Errorf("workflow: add node %q: %w", id, err)
		}
	}
	for _, e := range edges {
		if err := eng.Connect(e.From, e.To, e.When); err != nil {
			return nil, fmt.Errorf("workflow: connect %s->%s: %w", e.From, e.To, err)
		}
	}
	if err := eng.StartAt(startNode); err != nil {
		return nil, fmt.Errorf("workflow: start node %q: %w", startNode, err)
	}

	return &Runner{engine: eng, store: st}, nil
}

// Edge mirrors graph.Edge[WorkflowState] at the package boundary so callers
// assembling a workflow graph don't need to import graph directly for the
// common case.
type Edge struct {
	From string
	To   string
	When graph.Predicate[WorkflowState]
}

func allOptsAsInterfaces(opts []graph.Option) []interface{} {
	out := make([]interface{}, len(opts))
	for i, o := range opts {
		out[i] = o
	}
	return out
}

// Run starts a new run for threadID with the given initial state.
func (r *Runner) Run(ctx context.Context, threadID string, initial WorkflowState) (WorkflowState, error) {
	return r.engine.Run(ctx, threadID, initial)
}

// Resume continues a run previously suspended by an interrupt. humanInput is
// injected into the resumed node's context so it can read the operator's
// response; per spec.md §4.1 "resume(input) supplies input as the node's
// completion value and proceeds."
func (r *Runner) Resume(ctx context.Context, interrupted *graph.InterruptError, humanInput any) (WorkflowState, error) {
	cpID := interrupted.RunID + ":interrupt:" + interrupted.NodeID
	resumeNode := interrupted.Resume
	if resumeNode == "" {
		resumeNode = interrupted.NodeID
	}
	ctx = context.WithValue(ctx, HumanInputKey, humanInput)
	return r.engine.ResumeFromCheckpoint(ctx, cpID, interrupted.RunID, resumeNode)
}

// AsInterrupt extracts an *graph.InterruptError from err, if that's what
// caused Run to return.
func AsInterrupt(err error) (*graph.InterruptError, bool) {
	var ie *graph.InterruptError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// contextKey follows the teacher's private context-key pattern
// (RunIDKey/StepIDKey/...).
type contextKey string

// HumanInputKey carries the operator's response into a resumed node.
const HumanInputKey contextKey = "workflow.human_input"

// HumanInputFromContext retrieves the value set by Resume, if any.
func HumanInputFromContext(ctx context.Context) (any, bool) {
	v := ctx.Value(HumanInputKey)
	return v, v != nil
}

// RequestPause marks state so the next iteration boundary checkpoints and
// returns, per spec.md §5 cancellation semantics.
func RequestPause(s WorkflowState) WorkflowState {
	s.PauseRequested = true
	return s
}
