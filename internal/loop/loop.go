// Package loop implements the iterative "fresh-context" execution loop that
// drives a single agent invocation across successive independent process
// launches until a completion token is seen and tests pass, or a budget is
// exhausted. Grounded step-for-step on
// orchestrator/langgraph/integrations/ralph_loop.py's run_ralph_loop.
package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/hooks"
)

// CompletionToken is the literal string an agent emits to claim it believes
// the task is done. Its appearance is only a hint; the loop always
// cross-checks with the test command (spec.md §9, "Subprocess envelopes").
const CompletionToken = "<promise>DONE</promise>"

// CompletionReason explains why the loop stopped.
type CompletionReason string

const (
	ReasonCompletionSignalSeen CompletionReason = "completion_signal_seen"
	ReasonTestsAllPass         CompletionReason = "tests_all_pass"
	ReasonMaxIterations        CompletionReason = "max_iterations"
	ReasonBudgetExhausted      CompletionReason = "budget_exhausted"
	ReasonTimeout              CompletionReason = "timeout"
	ReasonError                CompletionReason = "error"
	ReasonHookStop             CompletionReason = "hook_stop"
)

// Config is the per-task loop configuration, field-for-field matching
// spec.md §4.3's Inputs config block.
type Config struct {
	MaxIterations      int
	IterationTimeout   time.Duration
	TestCommand        []string
	TestTimeout        time.Duration
	CompletionPattern  string
	AllowedTools       []string
	MaxTurnsPerIter    int
	BudgetPerIteration float64
	MaxBudget          float64
	Model              string
	LogRetentionDays   int
	LogDir             string
}

// DefaultConfig matches the defaults spec.md §4.3/§4.4 names.
func DefaultConfig() Config {
	return Config{
		MaxIterations:      10,
		IterationTimeout:   300 * time.Second,
		TestTimeout:        60 * time.Second,
		CompletionPattern:  CompletionToken,
		MaxTurnsPerIter:    15,
		BudgetPerIteration: 0.50,
		MaxBudget:          5.00,
		LogRetentionDays:   7,
	}
}

// Task is the subset of internal/workflow.Task the loop needs; kept as its
// own small struct so the loop package has no dependency on workflow.
type Task struct {
	ID                 string
	Title              string
	UserStory          string
	AcceptanceCriteria []string
	FilesToCreate      []string
	FilesToModify      []string
	TestFiles          []string
}

// IterationResult is one entry of PerIterationTestResults.
type IterationResult struct {
	Iteration int
	Passed    bool
	Summary   string
}

// Result is the loop's unified return shape (spec.md §4.3 Output).
type Result struct {
	Success                 bool
	Iterations              int
	FinalOutput             string
	PerIterationTestResults []IterationResult
	TotalTime               time.Duration
	TotalCost               float64
	CompletionReason        CompletionReason
	Error                   string
}

// CostEstimator reports the cost incurred for a completed iteration; nil
// defaults to a flat per-iteration cost.
type CostEstimator func(stdout string) float64

// Loop drives a single task's agent through repeated fresh invocations.
type Loop struct {
	Agent        agent.Agent
	AgentKind    string
	ProjectDir   string
	RunTests     func(ctx context.Context, testFiles []string, timeout time.Duration) (TestOutcome, error)
	EstimateCost CostEstimator

	// Hooks, when set, fires pre-iteration/post-iteration/stop-check
	// scripts around each iteration. nil skips all three.
	Hooks *hooks.Runner
}

// runHook is a nil-safe wrapper so callers don't have to guard l.Hooks.
func (l *Loop) runHook(ctx context.Context, name hooks.Name, vars map[string]any) (stop bool) {
	if l.Hooks == nil {
		return false
	}
	stop, _ = l.Hooks.Run(ctx, name, vars)
	return stop
}

// TestOutcome is the parsed result of running the configured test command.
type TestOutcome struct {
	AllPassed    bool
	Summary      string
	FailingNames []string
}

var testSummaryRe = regexp.MustCompile(`(\d+)\s+passed,?\s+(\d+)\s+failed`)

// ParseTestSummary extracts "N passed, M failed" from test runner output,
// grounded in spirit (not verbatim) on ralph_loop.py's test-summary
// handling, reimplemented with Go's regexp package.
func ParseTestSummary(output string) (passed, failed int, ok bool) {
	m := testSummaryRe.FindStringSubmatch(output)
	if m == nil {
		return 0, 0, false
	}
	p, err1 := strconv.Atoi(m[1])
	f, err2 := strconv.Atoi(m[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return p, f, true
}

// Run executes the per-iteration protocol of spec.md §4.3 steps 1-9.
func (l *Loop) Run(ctx context.Context, task Task, cfg Config) Result {
	if cfg.MaxIterations <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.LogDir != "" {
		pruneOldLogs(cfg.LogDir, cfg.LogRetentionDays)
	}

	start := time.Now()
	var testResults []IterationResult
	var totalCost float64
	var previousContext string
	noTestsRequired := len(task.TestFiles) == 0

	for i := 1; i <= cfg.MaxIterations; i++ {
		// Step 1: budget check.
		projected := float64(i) * cfg.BudgetPerIteration
		if cfg.MaxBudget > 0 && projected > cfg.MaxBudget {
			return Result{
				Iterations:              i - 1,
				PerIterationTestResults: testResults,
				TotalTime:               time.Since(start),
				TotalCost:               totalCost,
				CompletionReason:        ReasonBudgetExhausted,
			}
		}

		l.runHook(ctx, hooks.PreIteration, map[string]any{
			"task_id": task.ID, "iteration": i, "max_iterations": cfg.MaxIterations,
		})

		// Step 2: render the iteration prompt.
		prompt := renderPrompt(task, previousContext, i, cfg.MaxIterations)

		// Step 3: invoke the agent fresh, bounded by iteration_timeout.
		iterCtx, cancel := context.WithTimeout(ctx, cfg.IterationTimeout)
		res, err := l.Agent.Invoke(iterCtx, agent.InvokeRequest{
			Kind:         l.AgentKind,
			Prompt:       prompt,
			AllowedTools: cfg.AllowedTools,
			MaxTurns:     cfg.MaxTurnsPerIter,
			Timeout:      cfg.IterationTimeout,
			EnvOverrides: map[string]string{"TERM": "dumb"},
		})
		cancel()

		if cfg.LogDir != "" {
			_ = saveIterationLog(cfg.LogDir, task.ID, i, res)
		}

		if err != nil || res.Error == agent.ErrorTimeout {
			summary := "error occurred"
			if res.Error == agent.ErrorTimeout {
				summary = "tests timed out"
			}
			testResults = append(testResults, IterationResult{Iteration: i, Passed: false, Summary: summary})
			previousContext = fmt.Sprintf("PREVIOUS ITERATION %d: %s. Please try a different approach.", i, summary)
			l.runHook(ctx, hooks.PostIteration, map[string]any{"task_id": task.ID, "iteration": i, "passed": false, "summary": summary})
			if l.runHook(ctx, hooks.StopCheck, map[string]any{"task_id": task.ID, "iteration": i}) {
				return Result{
					Iterations:              i,
					PerIterationTestResults: testResults,
					TotalTime:               time.Since(start),
					TotalCost:               totalCost,
					CompletionReason:        ReasonHookStop,
					Error:                   "stop-check hook requested halt",
				}
			}
			continue
		}

		if l.EstimateCost != nil {
			totalCost += l.EstimateCost(res.Stdout)
		} else {
			totalCost += cfg.BudgetPerIteration
		}

		// Step 4: scan for the completion token.
		completionDetected := strings.Contains(res.Stdout, cfg.CompletionPattern)

		// Step 5: run tests (unless none are required).
		var outcome TestOutcome
		if noTestsRequired {
			outcome = TestOutcome{AllPassed: completionDetected, Summary: "no tests required"}
		} else if l.RunTests != nil {
			testTimeout := cfg.TestTimeout
			if testTimeout <= 0 {
				testTimeout = 60 * time.Second
			}
			testCtx, testCancel := context.WithTimeout(ctx, testTimeout)
			o, terr := l.RunTests(testCtx, task.TestFiles, testTimeout)
			testCancel()
			if terr != nil {
				o = TestOutcome{AllPassed: false, Summary: "tests timed out"}
			}
			outcome = o
		}

		testResults = append(testResults, IterationResult{Iteration: i, Passed: outcome.AllPassed, Summary: outcome.Summary})

		// Step 6: tests all pass -> success.
		if outcome.AllPassed {
			reason := ReasonTestsAllPass
			if completionDetected {
				reason = ReasonCompletionSignalSeen
			}
			return Result{
				Success:                 true,
				Iterations:              i,
				FinalOutput:             res.Stdout,
				PerIterationTestResults: testResults,
				TotalTime:               time.Since(start),
				TotalCost:               totalCost,
				CompletionReason:        reason,
			}
		}

		// Step 7: completion token seen but tests still fail - the agent
		// lied; treat as a normal failed iteration and continue.

		l.runHook(ctx, hooks.PostIteration, map[string]any{
			"task_id": task.ID, "iteration": i, "passed": outcome.AllPassed, "summary": outcome.Summary,
		})
		if l.runHook(ctx, hooks.StopCheck, map[string]any{"task_id": task.ID, "iteration": i}) {
			return Result{
				Iterations:              i,
				PerIterationTestResults: testResults,
				TotalTime:               time.Since(start),
				TotalCost:               totalCost,
				CompletionReason:        ReasonHookStop,
				Error:                   "stop-check hook requested halt",
			}
		}

		// Step 8: build context for the next iteration.
		previousContext = buildPreviousContext(i, outcome, res.Stdout)
	}

	// Step 9: exhausted max_iterations.
	return Result{
		Iterations:              cfg.MaxIterations,
		PerIterationTestResults: testResults,
		TotalTime:               time.Since(start),
		TotalCost:               totalCost,
		CompletionReason:        ReasonMaxIterations,
		Error:                   fmt.Sprintf("failed to complete task after %d iterations", cfg.MaxIterations),
	}
}

// taskImplementationEnvelope is the implementer agent's reply shape
// (spec.md §6 "Task-implementation envelope"): files_created/files_modified
// feed the next iteration's previous_iteration_context so the agent knows
// what it already touched, matching ralph_loop.py's files_changed extraction.
type taskImplementationEnvelope struct {
	FilesCreated  []string `json:"files_created"`
	FilesModified []string `json:"files_modified"`
}

func buildPreviousContext(iteration int, outcome TestOutcome, stdout string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PREVIOUS ITERATION %d: tests failed (%s).\n", iteration, outcome.Summary)

	if changed := changedFiles(stdout); len(changed) > 0 {
		if len(changed) > 5 {
			changed = changed[:5]
		}
		b.WriteString("Files changed: " + strings.Join(changed, ", ") + "\n")
	}

	if len(outcome.FailingNames) > 0 {
		n := outcome.FailingNames
		if len(n) > 5 {
			n = n[:5]
		}
		b.WriteString("Failing tests: " + strings.Join(n, ", ") + "\n")
	}
	return b.String()
}

// changedFiles extracts files_created/files_modified from the iteration's
// task-implementation envelope, if the agent emitted one. A malformed or
// absent envelope yields no changed files rather than an error, since the
// loop must keep going regardless.
func changedFiles(stdout string) []string {
	raw, err := agent.ExtractJSON(stdout)
	if err != nil {
		return nil
	}
	var envelope taskImplementationEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	return append(append([]string{}, envelope.FilesModified...), envelope.FilesCreated...)
}

func renderPrompt(task Task, previousContext string, iteration, maxIterations int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\n\n", task.ID, task.Title)
	if task.UserStory != "" {
		fmt.Fprintf(&b, "User story: %s\n\n", task.UserStory)
	}
	b.WriteString("Acceptance criteria:\n")
	for _, c := range task.AcceptanceCriteria {
		fmt.Fprintf(&b, "- [ ] %s\n", c)
	}
	if len(task.FilesToCreate) > 0 {
		fmt.Fprintf(&b, "\nFiles to create:\n%s\n", strings.Join(task.FilesToCreate, "\n"))
	}
	if len(task.FilesToModify) > 0 {
		fmt.Fprintf(&b, "\nFiles to modify:\n%s\n", strings.Join(task.FilesToModify, "\n"))
	}
	if len(task.TestFiles) > 0 {
		fmt.Fprintf(&b, "\nTest files:\n%s\n", strings.Join(task.TestFiles, "\n"))
	}
	if previousContext != "" {
		fmt.Fprintf(&b, "\n%s\n", previousContext)
	}
	fmt.Fprintf(&b, "\nIteration %d/%d. Run the tests, implement the minimal change to make one more test pass, re-run, and repeat until all tests pass. Emit the token %s only once all tests pass.\n", iteration, maxIterations, CompletionToken)
	return b.String()
}

func saveIterationLog(dir, taskID string, iteration int, res agent.InvokeResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-iter-%02d.log", taskID, iteration)
	return os.WriteFile(filepath.Join(dir, name), []byte(res.Stdout), 0o644)
}

// pruneOldLogs removes iteration log files older than retentionDays, fixing
// spec.md §9's noted bug (the original's cleanup_old_events used a
// present-moment ISO string as its cutoff instead of now-minus-days).
func pruneOldLogs(dir string, retentionDays int) {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
