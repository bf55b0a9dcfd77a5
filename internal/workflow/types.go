// Package workflow defines the durable state shared across the graph engine's
// nodes: the project-level WorkflowState, its nested Task/Plan/Feedback/Event
// types, and the reducer that merges per-node deltas into it.
package workflow

import (
	"sort"
	"time"
)

// Phase is one of the five ordinal lifecycle stages plus a prerequisites
// phase 0.
type Phase int

const (
	PhasePrerequisites Phase = iota
	PhasePlanning
	PhaseValidation
	PhaseImplementation
	PhaseVerification
	PhaseCompletion
)

// ExecutionMode chooses between human-gated and best-effort automatic
// escalation decisions.
type ExecutionMode string

const (
	ModeInteractive ExecutionMode = "interactive"
	ModeAutonomous  ExecutionMode = "autonomous"
)

// PhaseStatus is the status of a single phase's execution.
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "pending"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
	PhaseFailed     PhaseStatus = "failed"
	PhaseSkipped    PhaseStatus = "skipped"
	PhaseBlocked    PhaseStatus = "blocked"
)

// PhaseState tracks one phase's attempts and outcome.
type PhaseState struct {
	Status      PhaseStatus    `json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
}

// TaskStatus is a task's position in its pending -> in_progress -> terminal
// lifecycle.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskBlocked    TaskStatus = "blocked"
)

// Task is one unit of implementation work derived from the plan during
// task_breakdown.
type Task struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	UserStory           string     `json:"user_story"`
	AcceptanceCriteria  []string   `json:"acceptance_criteria"`
	FilesToCreate       []string   `json:"files_to_create"`
	FilesToModify       []string   `json:"files_to_modify"`
	TestFiles           []string   `json:"test_files"`
	Dependencies        []string   `json:"dependencies"`
	Status              TaskStatus `json:"status"`
	Attempts            int        `json:"attempts"`
	MaxAttempts         int        `json:"max_attempts"`
	Error               string     `json:"error,omitempty"`
	ImplementationNotes string     `json:"implementation_notes,omitempty"`
	AgentType           string     `json:"agent_type,omitempty"`
	Model               string     `json:"model,omitempty"`
}

// PlanPhase describes one planning-level phase inside a Plan envelope.
type PlanPhase struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	TaskTitles  []string `json:"task_titles"`
}

// TestStrategy is the planner's declared approach to testing the project.
type TestStrategy struct {
	UnitTests        bool     `json:"unit_tests"`
	IntegrationTests bool     `json:"integration_tests"`
	TestCommands     []string `json:"test_commands"`
}

// Plan is the structured implementation plan returned by the planner agent.
type Plan struct {
	PlanName            string       `json:"plan_name"`
	Summary             string       `json:"summary"`
	Phases              []PlanPhase  `json:"phases"`
	TestStrategy        TestStrategy `json:"test_strategy"`
	EstimatedComplexity string       `json:"estimated_complexity"`
}

// Feedback is one reviewer's verdict on a plan or an implementation.
type Feedback struct {
	Approved       bool     `json:"approved"`
	Score          float64  `json:"score"`
	BlockingIssues []string `json:"blocking_issues"`
	Summary        string   `json:"summary"`
	RawOutput      string   `json:"raw_output"`
}

// Decision is the router hint a node emits to steer the next edge
// evaluation.
type Decision string

const (
	DecisionContinue Decision = "continue"
	DecisionRetry    Decision = "retry"
	DecisionEscalate Decision = "escalate"
	DecisionAbort    Decision = "abort"
	DecisionNone     Decision = "none"
)

// WorkflowError is one entry in the append-only error list.
type WorkflowError struct {
	Type       string     `json:"type"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
	TaskID     string     `json:"task_id,omitempty"`
	Phase      int        `json:"phase,omitempty"`
	Resolution string     `json:"resolution,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// AgentExecution records one agent invocation for the bounded execution
// history.
type AgentExecution struct {
	NodeName     string    `json:"node_name"`
	AgentKind    string    `json:"agent_kind"`
	TaskID       string    `json:"task_id,omitempty"`
	PromptPrefix string    `json:"prompt_prefix"`
	OutputPrefix string    `json:"output_prefix"`
	Success      bool      `json:"success"`
	Timestamp    time.Time `json:"timestamp"`
}

// FixerAttempt tracks the fixer subgraph's current pass over an escalated
// error.
type FixerAttempt struct {
	ErrorType  string `json:"error_type"`
	TaskID     string `json:"task_id,omitempty"`
	Diagnosis  string `json:"diagnosis,omitempty"`
	FixPlan    string `json:"fix_plan,omitempty"`
	Attempts   int    `json:"attempts"`
	Researched bool   `json:"researched"`
	Validated  bool   `json:"validated"`
}

// WorkflowState is the engine's state type parameter: graph.Engine[WorkflowState].
// Every node receives a WorkflowState and returns a partial WorkflowState
// delta, merged by Reduce.
type WorkflowState struct {
	ProjectName string `json:"project_name"`
	ProjectDir  string `json:"project_dir"`

	ExecutionMode ExecutionMode `json:"execution_mode"`

	CurrentPhase int `json:"current_phase"`
	EndPhase     int `json:"end_phase"`

	PhaseStatus map[int]*PhaseState `json:"phase_status"`

	Plan  *Plan  `json:"plan,omitempty"`
	Tasks []Task `json:"tasks"`

	CompletedTaskIDs map[string]struct{} `json:"completed_task_ids"`
	FailedTaskIDs    map[string]struct{} `json:"failed_task_ids"`
	CurrentTaskID    string              `json:"current_task_id,omitempty"`
	CurrentTaskIDs   []string            `json:"current_task_ids,omitempty"`
	InFlightTaskIDs  map[string]struct{} `json:"in_flight_task_ids"`

	ValidationFeedback   map[string]Feedback `json:"validation_feedback"`
	VerificationFeedback map[string]Feedback `json:"verification_feedback"`

	Errors []WorkflowError `json:"errors"`

	NextDecision Decision `json:"next_decision"`

	IterationCount        int `json:"iteration_count"`
	MaxTaskLoopIterations int `json:"max_task_loop_iterations"`

	ExecutionHistory []AgentExecution `json:"execution_history"`

	FixerAttempt       *FixerAttempt `json:"fixer_attempt,omitempty"`
	CircuitBreakerOpen bool          `json:"circuit_breaker_open"`

	PauseRequested bool   `json:"pause_requested"`
	PausedAtNode   string `json:"paused_at_node,omitempty"`

	ReviewSkipped bool `json:"review_skipped"`
}

// MaxExecutionHistory bounds ExecutionHistory; Reduce trims to this length.
const MaxExecutionHistory = 50

// TaskByID returns the task with the given id and whether it was found.
func (s WorkflowState) TaskByID(id string) (Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// RunnableTasks returns pending tasks whose dependencies are all completed,
// ordered by id (lexicographic), matching select_task's tie-break rule.
func (s WorkflowState) RunnableTasks() []Task {
	var out []Task
	for _, t := range s.Tasks {
		if t.Status != TaskPending {
			continue
		}
		if _, inFlight := s.InFlightTaskIDs[t.ID]; inFlight {
			continue
		}
		ready := true
		for _, dep := range t.Dependencies {
			if _, ok := s.CompletedTaskIDs[dep]; !ok {
				ready = false
				break
			}
		}
		if ready {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
