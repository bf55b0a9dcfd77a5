package nodes

import (
	"context"
	"fmt"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// Finding is one result from a security scanner run.
type Finding struct {
	Severity string
	Rule     string
	Path     string
	Message  string
}

// SecurityGateNode runs the configured scanner and blocks completion when
// any finding's severity is in the configured blocking set, grounded on
// spec.md §6's SecurityConfig.
type SecurityGateNode struct {
	Deps *Deps

	// Scan runs the project's security scanner. nil disables the gate
	// regardless of config (treated as "scanner unavailable", not "no
	// findings").
	Scan func(ctx context.Context, projectDir string) ([]Finding, error)
}

func (n *SecurityGateNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	cfg := n.Deps.Config.Security
	if !cfg.Enabled || n.Scan == nil {
		return graph.NodeResult[workflow.WorkflowState]{
			Delta: workflow.WorkflowState{NextDecision: workflow.DecisionContinue},
			Route: graph.Goto("completion"),
		}
	}

	findings, err := n.Scan(ctx, n.Deps.ProjectDir)
	if err != nil {
		return retryOrEscalate(state, workflow.PhaseVerification, "", "security_gate_failed", "scan errored: "+err.Error())
	}

	var blocking []Finding
	for _, f := range findings {
		if cfg.HasSeverity(f.Severity) {
			blocking = append(blocking, f)
		}
	}
	if len(blocking) > 0 {
		message := fmt.Sprintf("%d blocking security finding(s), first: %s %s (%s)",
			len(blocking), blocking[0].Severity, blocking[0].Rule, blocking[0].Path)
		return escalateResult(workflow.PhaseVerification, "", "security_gate_failed", message)
	}

	return graph.NodeResult[workflow.WorkflowState]{
		Delta: workflow.WorkflowState{NextDecision: workflow.DecisionContinue},
		Route: graph.Goto("completion"),
	}
}
