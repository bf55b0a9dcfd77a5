package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/anthropics/agent-orchestrator/internal/repository"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

type statusFlags struct {
	ProjectName string
	RepoPath    string
	JSON        bool
	Verbose     bool
	Watch       bool
}

type statusOutput struct {
	ProjectName  string          `json:"project_name"`
	CurrentPhase string          `json:"current_phase"`
	TotalTasks   int             `json:"total_tasks"`
	Completed    int             `json:"completed"`
	Failed       int             `json:"failed"`
	InProgress   int             `json:"in_progress"`
	Pending      int             `json:"pending"`
	Percent      float64         `json:"percent"`
	Tasks        []statusTaskRow `json:"tasks,omitempty"`
}

type statusTaskRow struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

func newStatusCmd() *cobra.Command {
	var flags statusFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show task progress for the current project's last run",
		Long: `status reads the project's persisted workflow state (the --repository
store a previous "orchestrator run" was given) and renders the current phase
and task completion progress.

Use --verbose to list every task's status. Use --json for structured
output suitable for scripting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.ProjectName, "project", "", "Project name (default: current directory's base name)")
	cmd.Flags().StringVar(&flags.RepoPath, "repository", "", "SQLite file the run used for --repository (default: in-memory, which has nothing to show)")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Output structured JSON to stdout")
	cmd.Flags().BoolVar(&flags.Verbose, "verbose", false, "Show per-task status details")
	cmd.Flags().BoolVar(&flags.Watch, "watch", false, "Live-update the status view as the run progresses (polls every second)")

	rootCmd.AddCommand(cmd)
	return cmd
}

func init() {
	newStatusCmd()
}

func runStatus(cmd *cobra.Command, flags statusFlags) error {
	projectDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}
	projectName := flags.ProjectName
	if projectName == "" {
		projectName = filepath.Base(projectDir)
	}

	var repo repository.Repository
	if flags.RepoPath == "" {
		repo = repository.NewMemRepository()
	} else {
		repo, err = repository.NewSQLiteRepository(flags.RepoPath)
		if err != nil {
			return fmt.Errorf("opening repository: %w", err)
		}
	}

	ctx := context.Background()

	if flags.Watch {
		_, err := tea.NewProgram(newWatchModel(repo, projectName)).Run()
		return err
	}

	state, err := repo.LoadWorkflowState(ctx, projectName)
	if err != nil {
		return fmt.Errorf("loading workflow state for %q: %w", projectName, err)
	}

	out := buildStatusOutput(projectName, state)

	if flags.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	dest := cmd.ErrOrStderr()
	fmt.Fprintln(dest, renderStatusSummary(out))
	fmt.Fprintln(dest, renderStatusBar(out))
	if flags.Verbose {
		fmt.Fprint(dest, renderStatusTasks(out))
	}
	return nil
}

func buildStatusOutput(projectName string, state workflow.WorkflowState) statusOutput {
	out := statusOutput{
		ProjectName:  projectName,
		CurrentPhase: phaseName(workflow.Phase(state.CurrentPhase)),
		TotalTasks:   len(state.Tasks),
	}
	for _, t := range state.Tasks {
		switch t.Status {
		case workflow.TaskCompleted:
			out.Completed++
		case workflow.TaskFailed, workflow.TaskBlocked:
			out.Failed++
		case workflow.TaskInProgress:
			out.InProgress++
		default:
			out.Pending++
		}
		out.Tasks = append(out.Tasks, statusTaskRow{ID: t.ID, Title: t.Title, Status: string(t.Status)})
	}
	if out.TotalTasks > 0 {
		out.Percent = float64(out.Completed) / float64(out.TotalTasks) * 100
	}
	return out
}

func phaseName(p workflow.Phase) string {
	switch p {
	case workflow.PhasePrerequisites:
		return "prerequisites"
	case workflow.PhasePlanning:
		return "planning"
	case workflow.PhaseValidation:
		return "validation"
	case workflow.PhaseImplementation:
		return "implementation"
	case workflow.PhaseVerification:
		return "verification"
	case workflow.PhaseCompletion:
		return "completion"
	default:
		return fmt.Sprintf("phase %d", int(p))
	}
}

func renderStatusSummary(out statusOutput) string {
	headerStyle := lipgloss.NewStyle().Bold(true)
	title := fmt.Sprintf("orchestrator status - %s", out.ProjectName)
	sep := strings.Repeat("=", len(title))

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(sep)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Phase: %s\n", out.CurrentPhase))
	sb.WriteString(fmt.Sprintf("Tasks: %d/%d completed (%.0f%%)", out.Completed, out.TotalTasks, out.Percent))
	return sb.String()
}

func renderStatusBar(out statusOutput) string {
	const width = 40
	frac := 0.0
	if out.TotalTasks > 0 {
		frac = float64(out.Completed) / float64(out.TotalTasks)
	}
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(width), progress.WithoutPercentage())

	completedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	inProgressStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	var counts []string
	if out.Completed > 0 {
		counts = append(counts, completedStyle.Render(fmt.Sprintf("%d completed", out.Completed)))
	}
	if out.InProgress > 0 {
		counts = append(counts, inProgressStyle.Render(fmt.Sprintf("%d in-progress", out.InProgress)))
	}
	if out.Failed > 0 {
		counts = append(counts, failedStyle.Render(fmt.Sprintf("%d failed", out.Failed)))
	}
	if out.Pending > 0 {
		counts = append(counts, fmt.Sprintf("%d pending", out.Pending))
	}

	return fmt.Sprintf("%s %.0f%%\n  %s", bar.ViewAs(frac), out.Percent, strings.Join(counts, ", "))
}

// watchModel drives `status --watch`'s live-updating view: a bubbletea
// Model that polls the repository on a tick instead of reading it once,
// grounded on the Bubble Tea Model/Init/Update/View pattern other example
// repos (e.g. Raven's internal/tui) build their interactive dashboards on.
type watchModel struct {
	repo        repository.Repository
	projectName string
	out         statusOutput
	err         error
}

func newWatchModel(repo repository.Repository, projectName string) watchModel {
	return watchModel{repo: repo, projectName: projectName}
}

type watchTickMsg struct{}

func watchTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return watchTickMsg{} })
}

func (m watchModel) Init() tea.Cmd {
	return watchTick()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case watchTickMsg:
		state, err := m.repo.LoadWorkflowState(context.Background(), m.projectName)
		if err != nil {
			m.err = err
			return m, watchTick()
		}
		m.err = nil
		m.out = buildStatusOutput(m.projectName, state)
		return m, watchTick()
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("error loading status: %s\n(press q to quit)\n", m.err)
	}
	var sb strings.Builder
	sb.WriteString(renderStatusSummary(m.out))
	sb.WriteString("\n")
	sb.WriteString(renderStatusBar(m.out))
	sb.WriteString("\n")
	sb.WriteString(renderStatusTasks(m.out))
	sb.WriteString("(press q to quit)\n")
	return sb.String()
}

func renderStatusTasks(out statusOutput) string {
	var sb strings.Builder
	for _, t := range out.Tasks {
		title := t.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(&sb, "  %s  %-50s  %s\n", t.ID, title, t.Status)
	}
	return sb.String()
}
