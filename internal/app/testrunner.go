// Package app wires the loose internal/nodes/internal/workflow/internal/*
// collaborators into a runnable engine for one project directory, the
// equivalent of orchestrator/langgraph/workflow.py's graph-construction
// entry point.
package app

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/anthropics/agent-orchestrator/internal/config"
	"github.com/anthropics/agent-orchestrator/internal/loop"
)

// NewTestRunner builds a loop.Loop/nodes.Deps-compatible RunTests function
// that runs cfg.TestCommand (or "go test ./..." if unset) directly, no
// shell, the same argv-only discipline internal/agent/subprocess.go uses for
// agent binaries. testFiles is accepted for interface compatibility but not
// passed on the command line: the configured test command is expected to
// run the project's whole suite, since a per-file invocation would depend
// on a test framework this package has no way to know.
func NewTestRunner(projectDir string, cfg config.WorkflowConfig) func(ctx context.Context, testFiles []string, timeout time.Duration) (loop.TestOutcome, error) {
	argv := cfg.TestCommand
	if len(argv) == 0 {
		argv = []string{"go", "test", "./..."}
	}
	return func(ctx context.Context, testFiles []string, timeout time.Duration) (loop.TestOutcome, error) {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
		cmd.Dir = projectDir
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out

		runErr := cmd.Run()
		summary := out.String()
		if p, f, ok := loop.ParseTestSummary(summary); ok {
			return loop.TestOutcome{AllPassed: runErr == nil && f == 0, Summary: fmt.Sprintf("%d passed, %d failed", p, f)}, nil
		}
		return loop.TestOutcome{AllPassed: runErr == nil, Summary: summary}, nil
	}
}
