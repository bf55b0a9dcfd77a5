package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anthropics/agent-orchestrator/graph"
	"github.com/anthropics/agent-orchestrator/internal/app"
	"github.com/anthropics/agent-orchestrator/internal/escalation"
	"github.com/anthropics/agent-orchestrator/internal/logging"
)

// threadIDPattern keeps --thread values safe to embed in file paths, the
// same constraint Raven's resume command applies to --run.
var threadIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

type resumeFlags struct {
	ThreadID    string
	NodeID      string
	ResumeNode  string
	Action      string
	Answers     map[string]string
	ProjectName string
	StorePath   string
	RepoPath    string
	HandoffPath string
}

func newResumeCmd() *cobra.Command {
	var flags resumeFlags

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a run suspended at a human-in-the-loop escalation",
		Long: `resume continues a run that "orchestrator run" suspended when a node
exhausted its retry budget in interactive mode.

The thread ID and node ID are the ones printed by the suspended run's
"resolve with:" line. --action selects the operator decision handed back to
error-dispatch: retry re-runs the failed phase, skip marks the review as
skipped and continues at task selection, continue proceeds past the error,
abort ends the run.`,
		Example: `  orchestrator resume --thread myproj-1730000000 --node error-dispatch --action retry
  orchestrator resume --thread myproj-1730000000 --node error-dispatch --action answer_clarification --answer key=value`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.ThreadID, "thread", "", "Thread ID of the suspended run (required)")
	cmd.Flags().StringVar(&flags.NodeID, "node", "", "Node ID the run suspended at (required)")
	cmd.Flags().StringVar(&flags.ResumeNode, "resume-node", "", "Node to resume at, if different from --node")
	cmd.Flags().StringVar(&flags.Action, "action", string(escalation.ActionRetry), "Decision: retry, skip, continue, abort, or answer_clarification")
	cmd.Flags().StringToStringVar(&flags.Answers, "answer", nil, "key=value clarification answer, repeatable")
	cmd.Flags().StringVar(&flags.ProjectName, "project", "", "Project name (default: current directory's base name)")
	cmd.Flags().StringVar(&flags.StorePath, "store", "", "SQLite file the suspended run's engine store was opened with")
	cmd.Flags().StringVar(&flags.RepoPath, "repository", "", "SQLite file for the project-query repository (default: in-memory)")
	cmd.Flags().StringVar(&flags.HandoffPath, "handoff", ".workflow/HANDOFF.md", "Path the completion node writes the handoff brief to")

	_ = cmd.MarkFlagRequired("thread")
	_ = cmd.MarkFlagRequired("node")

	rootCmd.AddCommand(cmd)
	return cmd
}

func init() {
	newResumeCmd()
}

func runResume(cmd *cobra.Command, flags resumeFlags) error {
	logger := logging.New("resume")

	if !threadIDPattern.MatchString(flags.ThreadID) {
		return fmt.Errorf("resume: invalid --thread %q: only letters, digits, '.', '_', '-' are allowed", flags.ThreadID)
	}

	action := escalation.Action(strings.ToLower(flags.Action))
	switch action {
	case escalation.ActionRetry, escalation.ActionSkip, escalation.ActionContinue,
		escalation.ActionAbort, escalation.ActionAnswerClarification:
	default:
		return fmt.Errorf("resume: invalid --action %q: must be one of retry, skip, continue, abort, answer_clarification", flags.Action)
	}

	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}
	projectName := flags.ProjectName
	if projectName == "" {
		projectName = filepath.Base(projectDir)
	}

	built, err := app.Build(app.Options{
		ProjectDir:     projectDir,
		ProjectName:    projectName,
		StorePath:      flags.StorePath,
		RepositoryPath: flags.RepoPath,
		WriteHandoff:   handoffWriter(projectDir, flags.HandoffPath),
	})
	if err != nil {
		return fmt.Errorf("building workflow engine: %w", err)
	}

	interrupted := &graph.InterruptError{
		RunID:  flags.ThreadID,
		NodeID: flags.NodeID,
		Resume: flags.ResumeNode,
	}

	response := escalation.Response{Action: action, Answers: flags.Answers}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("resuming run", "thread", flags.ThreadID, "node", flags.NodeID, "action", action)

	final, runErr := built.Runner.Resume(ctx, interrupted, response)
	return reportRunOutcome(cmd, flags.ThreadID, final, runErr)
}
