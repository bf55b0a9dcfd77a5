// Package repository is the non-generic CRUD/query surface spec.md §6 names
// for the engine's durability layer: workflow state, phase outputs, tasks,
// logs, events, and checkpoints. Grounded on graph/store's Store[S], which
// covers step/checkpoint persistence for the engine itself; Repository adds
// the project-scoped query surface the teacher's generic store doesn't
// attempt (it's a library concern, agnostic of "project" as a unit).
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// ErrNotFound is returned when a requested project, task, or checkpoint
// doesn't exist.
var ErrNotFound = errors.New("repository: not found")

// LogEntry is one append-only record in a project's log stream.
type LogEntry struct {
	ID        string    `json:"id"`
	Project   string    `json:"project"`
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// LogFilter narrows a log query.
type LogFilter struct {
	Type      string
	TaskID    string
	OlderThan time.Time
	Limit     int
}

// EventFilter narrows an event query.
type EventFilter struct {
	Since          time.Time
	MinPriority    events.Priority
	HasMinPriority bool
	Limit          int
}

// Checkpoint is a named, queryable snapshot of a project's workflow state,
// independent of the engine's own internal checkpointing
// (graph/store.Store[S]) — this one is addressed by project + label for
// operator-facing branching/rollback, not by run ID + step.
type Checkpoint struct {
	Label     string
	Project   string
	State     workflow.WorkflowState
	CreatedAt time.Time
}

// Repository is the durability surface every node, the runner, and the CLI
// depend on. All operations are safe for concurrent use by multiple goroutines
// against the same project.
type Repository interface {
	// SaveWorkflowState persists the latest accumulated state for a project.
	SaveWorkflowState(ctx context.Context, project string, state workflow.WorkflowState) error
	// LoadWorkflowState retrieves the latest persisted state for a project.
	LoadWorkflowState(ctx context.Context, project string) (workflow.WorkflowState, error)

	// AppendPhaseOutput records one phase's output artifact (e.g. a
	// rendered plan, a review verdict). Phase outputs are append-only.
	AppendPhaseOutput(ctx context.Context, project string, phase int, output string) error
	// LatestPhaseOutput returns the most recently appended output for a phase.
	LatestPhaseOutput(ctx context.Context, project string, phase int) (string, error)

	// UpsertTask creates or replaces a task record by ID.
	UpsertTask(ctx context.Context, project string, task workflow.Task) error
	// ListTasks returns every task recorded for a project, in ID order.
	ListTasks(ctx context.Context, project string) ([]workflow.Task, error)

	// AppendLog records one log entry.
	AppendLog(ctx context.Context, project string, entry LogEntry) error
	// QueryLogs returns log entries matching filter, newest first.
	QueryLogs(ctx context.Context, project string, filter LogFilter) ([]LogEntry, error)

	// AppendEvent records one emitted event for durable replay/audit.
	AppendEvent(ctx context.Context, project string, ev events.Event) error
	// QueryEvents returns events matching filter, oldest first.
	QueryEvents(ctx context.Context, project string, filter EventFilter) ([]events.Event, error)
	// DeleteEventsOlderThan removes events older than cutoff, returning the
	// count removed.
	DeleteEventsOlderThan(ctx context.Context, project string, cutoff time.Time) (int, error)

	// SaveCheckpoint records a named, queryable snapshot.
	SaveCheckpoint(ctx context.Context, cp Checkpoint) error
	// ListCheckpoints returns every checkpoint for a project, newest first.
	ListCheckpoints(ctx context.Context, project string) ([]Checkpoint, error)

	// Close releases any underlying connection.
	Close() error
}
