// Package events defines the workflow observability event taxonomy and an
// emitter that batches and filters events before handing them to a sink,
// grounded on orchestrator/events/{types,emitter}.py.
package events

// Type enumerates the kinds of events the workflow emits, field-for-field
// matching orchestrator/events/types.py's EventType.
type Type string

const (
	NodeStart Type = "node_start"
	NodeEnd   Type = "node_end"

	PhaseStart  Type = "phase_start"
	PhaseEnd    Type = "phase_end"
	PhaseChange Type = "phase_change"

	TaskStart    Type = "task_start"
	TaskComplete Type = "task_complete"
	TaskFailed   Type = "task_failed"
	TasksCreated Type = "tasks_created"

	AgentStart    Type = "agent_start"
	AgentComplete Type = "agent_complete"

	RalphIteration Type = "ralph_iteration"

	ErrorOccurred      Type = "error_occurred"
	EscalationRequired Type = "escalation_required"

	WorkflowStart    Type = "workflow_start"
	WorkflowComplete Type = "workflow_complete"
	WorkflowPaused   Type = "workflow_paused"
	WorkflowResumed  Type = "workflow_resumed"

	MetricsUpdate Type = "metrics_update"

	PathDecision Type = "path_decision"
)

// Priority controls which events a min-priority filter lets through.
// Lower rank means higher priority; HIGH wins over MEDIUM wins over LOW.
type Priority string

const (
	High   Priority = "high"
	Medium Priority = "medium"
	Low    Priority = "low"
)

var priorityRank = map[Priority]int{High: 0, Medium: 1, Low: 2}

func rank(p Priority) int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return priorityRank[Low]
}

// Event is one observability event, field-for-field matching spec.md's
// Event type and orchestrator/events/types.py's WorkflowEvent.
type Event struct {
	EventType     Type
	ProjectName   string
	Timestamp     string
	Priority      Priority
	NodeName      string
	TaskID        string
	Phase         int
	HasPhase      bool
	CorrelationID string
	Data          map[string]any
}

// The following constructors mirror orchestrator/events/types.py's factory
// functions for the event shapes the workflow emits most often. Timestamp is
// left for the caller (or the Emitter) to stamp, since this package never
// calls time.Now() itself to keep construction deterministic for tests.

func NewNodeStart(project, node string, phase int) Event {
	return Event{EventType: NodeStart, ProjectName: project, NodeName: node, Phase: phase, HasPhase: true, Priority: Low}
}

func NewNodeEnd(project, node string, phase int, success bool, durationSeconds float64) Event {
	return Event{
		EventType: NodeEnd, ProjectName: project, NodeName: node, Phase: phase, HasPhase: true, Priority: Low,
		Data: map[string]any{"success": success, "duration_seconds": durationSeconds},
	}
}

func NewPhaseStart(project string, phase int, node string) Event {
	return Event{EventType: PhaseStart, ProjectName: project, Phase: phase, HasPhase: true, NodeName: node, Priority: High,
		Data: map[string]any{"phase": phase, "status": "in_progress"}}
}

func NewPhaseEnd(project string, phase int, success bool, node, errMsg string) Event {
	status := "completed"
	if !success {
		status = "failed"
	}
	return Event{EventType: PhaseEnd, ProjectName: project, Phase: phase, HasPhase: true, NodeName: node, Priority: High,
		Data: map[string]any{"phase": phase, "success": success, "status": status, "error": errMsg}}
}

func NewPhaseChange(project string, fromPhase, toPhase int, status string) Event {
	return Event{EventType: PhaseChange, ProjectName: project, Phase: toPhase, HasPhase: true, Priority: High,
		Data: map[string]any{"from_phase": fromPhase, "to_phase": toPhase, "status": status}}
}

func NewTaskStart(project, taskID, title string, phase int) Event {
	return Event{EventType: TaskStart, ProjectName: project, TaskID: taskID, Phase: phase, HasPhase: true, Priority: Medium,
		Data: map[string]any{"title": title}}
}

func NewTaskComplete(project, taskID string, success bool, phase int, errMsg string) Event {
	t := TaskComplete
	if !success {
		t = TaskFailed
	}
	return Event{EventType: t, ProjectName: project, TaskID: taskID, Phase: phase, HasPhase: true, Priority: Medium,
		Data: map[string]any{"success": success, "error": errMsg}}
}

func NewTasksCreated(project string, taskCount, milestoneCount, phase int) Event {
	return Event{EventType: TasksCreated, ProjectName: project, Phase: phase, HasPhase: true, Priority: High,
		Data: map[string]any{"task_count": taskCount, "milestone_count": milestoneCount}}
}

func NewAgentStart(project, agentName, node, taskID string) Event {
	return Event{EventType: AgentStart, ProjectName: project, NodeName: node, TaskID: taskID, Priority: Low,
		Data: map[string]any{"agent": agentName}}
}

func NewAgentComplete(project, agentName, node string, success bool, durationSeconds float64, taskID string) Event {
	return Event{EventType: AgentComplete, ProjectName: project, NodeName: node, TaskID: taskID, Priority: Low,
		Data: map[string]any{"agent": agentName, "success": success, "duration_seconds": durationSeconds}}
}

func NewRalphIteration(project, taskID string, iteration, maxIterations, testsPassed, testsTotal int) Event {
	return Event{EventType: RalphIteration, ProjectName: project, TaskID: taskID, Priority: Low,
		Data: map[string]any{
			"iteration": iteration, "max_iterations": maxIterations,
			"tests_passed": testsPassed, "tests_total": testsTotal,
		}}
}

func NewError(project, message, errType, node, taskID string, recoverable bool) Event {
	return Event{EventType: ErrorOccurred, ProjectName: project, NodeName: node, TaskID: taskID, Priority: High,
		Data: map[string]any{"error_message": message, "error_type": errType, "recoverable": recoverable}}
}

func NewEscalation(project, question, node string, options []string, context map[string]any) Event {
	if options == nil {
		options = []string{}
	}
	if context == nil {
		context = map[string]any{}
	}
	return Event{EventType: EscalationRequired, ProjectName: project, NodeName: node, Priority: High,
		Data: map[string]any{"question": question, "options": options, "context": context}}
}

func NewWorkflowStart(project, mode string, startPhase int, autonomous bool) Event {
	return Event{EventType: WorkflowStart, ProjectName: project, Phase: startPhase, HasPhase: true, Priority: High,
		Data: map[string]any{"mode": mode, "start_phase": startPhase, "autonomous": autonomous}}
}

func NewWorkflowComplete(project string, success bool, finalPhase int, summary map[string]any) Event {
	if summary == nil {
		summary = map[string]any{}
	}
	return Event{EventType: WorkflowComplete, ProjectName: project, Phase: finalPhase, HasPhase: true, Priority: High,
		Data: map[string]any{"success": success, "summary": summary}}
}

func NewWorkflowPaused(project string, phase int, node, reason string) Event {
	return Event{EventType: WorkflowPaused, ProjectName: project, Phase: phase, HasPhase: true, NodeName: node, Priority: High,
		Data: map[string]any{"reason": reason}}
}

func NewWorkflowResumed(project string, phase int, node string) Event {
	return Event{EventType: WorkflowResumed, ProjectName: project, Phase: phase, HasPhase: true, NodeName: node, Priority: High}
}

func NewMetricsUpdate(project string, tokens int, cost float64, filesCreated, filesModified int) Event {
	return Event{EventType: MetricsUpdate, ProjectName: project, Priority: Low,
		Data: map[string]any{"tokens": tokens, "cost": cost, "files_created": filesCreated, "files_modified": filesModified}}
}

func NewPathDecision(project, router, decision string, phase int) Event {
	return Event{EventType: PathDecision, ProjectName: project, Phase: phase, HasPhase: true, Priority: Low,
		Data: map[string]any{"router": router, "decision": decision}}
}
