package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/app"
	"github.com/anthropics/agent-orchestrator/internal/logging"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

type runFlags struct {
	ProjectName string
	Mode        string
	StorePath   string
	RepoPath    string
	HandoffPath string
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a fresh workflow run for the current project",
		Long: `run starts a new workflow run from phase 1 (planning) for the project
rooted at the current directory (override with --dir).

In interactive mode (the default), the run suspends and prints a question
whenever a node exhausts its retry budget; resume it with "orchestrator
resume". In autonomous mode, escalations are resolved by a bounded-retry
policy with no human in the loop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.ProjectName, "project", "", "Project name (default: current directory's base name)")
	cmd.Flags().StringVar(&flags.Mode, "mode", "interactive", `Execution mode: "interactive" or "autonomous"`)
	cmd.Flags().StringVar(&flags.StorePath, "store", "", "SQLite file for engine step/checkpoint persistence (default: in-memory)")
	cmd.Flags().StringVar(&flags.RepoPath, "repository", "", "SQLite file for the project-query repository (default: in-memory)")
	cmd.Flags().StringVar(&flags.HandoffPath, "handoff", ".workflow/HANDOFF.md", "Path the completion node writes the handoff brief to")

	rootCmd.AddCommand(cmd)
	return cmd
}

func init() {
	newRunCmd()
}

func runWorkflow(cmd *cobra.Command, flags runFlags) error {
	logger := logging.New("run")

	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}
	projectName := flags.ProjectName
	if projectName == "" {
		projectName = filepath.Base(projectDir)
	}

	mode, err := parseMode(flags.Mode)
	if err != nil {
		return err
	}

	built, err := app.Build(app.Options{
		ProjectDir:     projectDir,
		ProjectName:    projectName,
		Mode:           mode,
		StorePath:      flags.StorePath,
		RepositoryPath: flags.RepoPath,
		WriteHandoff:   handoffWriter(projectDir, flags.HandoffPath),
	})
	if err != nil {
		return fmt.Errorf("building workflow engine: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	threadID := fmt.Sprintf("%s-%d", projectName, time.Now().Unix())
	logger.Info("starting run", "project", projectName, "mode", mode, "thread", threadID)

	final, runErr := built.Runner.Run(ctx, threadID, built.InitialState())
	return reportRunOutcome(cmd, threadID, final, runErr)
}

// reportRunOutcome is shared between run and resume: both end with either a
// completed/failed WorkflowState, a fresh interrupt to report back to the
// operator, or a hard error.
func reportRunOutcome(cmd *cobra.Command, threadID string, final workflow.WorkflowState, runErr error) error {
	if runErr != nil {
		if interrupted, ok := workflow.AsInterrupt(runErr); ok {
			return printInterrupt(cmd, threadID, interrupted)
		}
		return fmt.Errorf("run %s failed: %w", threadID, runErr)
	}

	success := len(final.FailedTaskIDs) == 0
	fmt.Fprintf(cmd.OutOrStdout(), "run %s finished: success=%v completed=%d failed=%d\n",
		threadID, success, len(final.CompletedTaskIDs), len(final.FailedTaskIDs))
	if !success {
		return errors.New("workflow completed with failed tasks")
	}
	return nil
}

func printInterrupt(cmd *cobra.Command, threadID string, interrupted *graph.InterruptError) error {
	fmt.Fprintf(cmd.OutOrStdout(), "run %s suspended: %s\n", threadID, interrupted.Error())
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(interrupted.Payload)
	fmt.Fprintf(cmd.OutOrStdout(), "resolve with: orchestrator resume --thread %s --node %s --action <retry|skip|continue|abort>\n",
		threadID, interrupted.NodeID)
	return nil
}

func parseMode(s string) (workflow.ExecutionMode, error) {
	switch s {
	case "", "interactive":
		return workflow.ModeInteractive, nil
	case "autonomous":
		return workflow.ModeAutonomous, nil
	default:
		return "", fmt.Errorf(`invalid --mode %q: must be "interactive" or "autonomous"`, s)
	}
}

func handoffWriter(projectDir, relPath string) func(markdown string) error {
	if relPath == "" {
		return nil
	}
	path := relPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, relPath)
	}
	return func(markdown string) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(markdown), 0o644)
	}
}
