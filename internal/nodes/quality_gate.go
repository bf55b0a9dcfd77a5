package nodes

import (
	"context"
	"fmt"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// QualityGateNode enforces build/lint/coverage requirements before the
// workflow is allowed to proceed to the security gate, grounded on
// spec.md §6's QualityConfig (coverage_threshold, coverage_blocking,
// build_required, lint_required).
type QualityGateNode struct {
	Deps *Deps

	// CoverageCheck runs the project's coverage tool and returns the
	// percentage covered. nil disables the check regardless of config.
	CoverageCheck func(ctx context.Context, projectDir string) (float64, error)

	// Build and Lint run the project's build/lint commands, returning nil
	// on success. nil disables the corresponding check.
	Build func(ctx context.Context, projectDir string) error
	Lint  func(ctx context.Context, projectDir string) error
}

func (n *QualityGateNode) Run(ctx context.Context, state workflow.WorkflowState) graph.NodeResult[workflow.WorkflowState] {
	cfg := n.Deps.Config.Quality

	if cfg.BuildRequired && n.Build != nil {
		if err := n.Build(ctx, n.Deps.ProjectDir); err != nil {
			return retryOrEscalate(state, workflow.PhaseVerification, "", "quality_gate_failed", "build failed: "+err.Error())
		}
	}

	if cfg.LintRequired && n.Lint != nil {
		if err := n.Lint(ctx, n.Deps.ProjectDir); err != nil {
			return retryOrEscalate(state, workflow.PhaseVerification, "", "quality_gate_failed", "lint failed: "+err.Error())
		}
	}

	if n.CoverageCheck != nil {
		pct, err := n.CoverageCheck(ctx, n.Deps.ProjectDir)
		if err != nil {
			return retryOrEscalate(state, workflow.PhaseVerification, "", "quality_gate_failed", "coverage check errored: "+err.Error())
		}
		if pct < cfg.CoverageThreshold && cfg.CoverageBlocking {
			message := fmt.Sprintf("coverage %.1f%% below threshold %.1f%%", pct, cfg.CoverageThreshold)
			return retryOrEscalate(state, workflow.PhaseVerification, "", "quality_gate_failed", message)
		}
	}

	delta := workflow.WorkflowState{NextDecision: workflow.DecisionContinue}
	if n.Deps.Config.Security.Enabled {
		return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("security-gate")}
	}
	return graph.NodeResult[workflow.WorkflowState]{Delta: delta, Route: graph.Goto("completion")}
}
