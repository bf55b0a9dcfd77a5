package workflow

import "sort"

// Reduce merges a delta WorkflowState produced by a node into the previous
// durable state. It is passed to graph.New as the Reducer[WorkflowState]:
// scalars take the last writer, slices append, sets union by key, and maps
// merge by key — the same per-field policy ReduceReviewState applies to
// ReviewState, generalized to the orchestrator's richer state shape.
func Reduce(prev, delta WorkflowState) WorkflowState {
	if delta.ProjectName != "" {
		prev.ProjectName = delta.ProjectName
	}
	if delta.ProjectDir != "" {
		prev.ProjectDir = delta.ProjectDir
	}
	if delta.ExecutionMode != "" {
		prev.ExecutionMode = delta.ExecutionMode
	}

	// current_phase only moves forward or stays; callers that intend an
	// autonomous skip-ahead set ReviewSkipped alongside a jump.
	if delta.CurrentPhase > prev.CurrentPhase {
		prev.CurrentPhase = delta.CurrentPhase
	}
	if delta.EndPhase > 0 {
		prev.EndPhase = delta.EndPhase
	}

	if len(delta.PhaseStatus) > 0 {
		if prev.PhaseStatus == nil {
			prev.PhaseStatus = map[int]*PhaseState{}
		}
		for phase, st := range delta.PhaseStatus {
			prev.PhaseStatus[phase] = st
		}
	}

	if delta.Plan != nil {
		prev.Plan = delta.Plan
	}
	if len(delta.Tasks) > 0 {
		prev.Tasks = mergeTasks(prev.Tasks, delta.Tasks)
	}

	prev.CompletedTaskIDs = unionSet(prev.CompletedTaskIDs, delta.CompletedTaskIDs)
	prev.FailedTaskIDs = unionSet(prev.FailedTaskIDs, delta.FailedTaskIDs)

	if delta.CurrentTaskID != "" {
		prev.CurrentTaskID = delta.CurrentTaskID
	}
	if delta.CurrentTaskIDs != nil {
		prev.CurrentTaskIDs = delta.CurrentTaskIDs
	}
	prev.InFlightTaskIDs = unionSet(prev.InFlightTaskIDs, delta.InFlightTaskIDs)

	if len(delta.ValidationFeedback) > 0 {
		prev.ValidationFeedback = mergeFeedback(prev.ValidationFeedback, delta.ValidationFeedback)
	}
	if len(delta.VerificationFeedback) > 0 {
		prev.VerificationFeedback = mergeFeedback(prev.VerificationFeedback, delta.VerificationFeedback)
	}

	prev.Errors = append(prev.Errors, delta.Errors...)

	if delta.NextDecision != "" {
		prev.NextDecision = delta.NextDecision
	}

	if delta.IterationCount > 0 {
		prev.IterationCount = delta.IterationCount
	}
	if delta.MaxTaskLoopIterations > 0 {
		prev.MaxTaskLoopIterations = delta.MaxTaskLoopIterations
	}

	if len(delta.ExecutionHistory) > 0 {
		prev.ExecutionHistory = append(prev.ExecutionHistory, delta.ExecutionHistory...)
		if len(prev.ExecutionHistory) > MaxExecutionHistory {
			prev.ExecutionHistory = prev.ExecutionHistory[len(prev.ExecutionHistory)-MaxExecutionHistory:]
		}
	}

	if delta.FixerAttempt != nil {
		prev.FixerAttempt = delta.FixerAttempt
	}
	// CircuitBreakerOpen only ever latches closed->open within a run; a
	// delta explicitly reopening it (after a manual reset) still wins.
	if delta.CircuitBreakerOpen {
		prev.CircuitBreakerOpen = true
	}

	prev.PauseRequested = delta.PauseRequested
	if delta.PausedAtNode != "" {
		prev.PausedAtNode = delta.PausedAtNode
	}
	if delta.ReviewSkipped {
		prev.ReviewSkipped = true
	}

	return prev
}

// mergeTasks replaces tasks present by id in delta, preserving order of prev
// and appending any delta tasks with unseen ids.
func mergeTasks(prev, delta []Task) []Task {
	idx := make(map[string]int, len(prev))
	out := make([]Task, len(prev))
	copy(out, prev)
	for i, t := range out {
		idx[t.ID] = i
	}
	for _, t := range delta {
		if i, ok := idx[t.ID]; ok {
			out[i] = t
		} else {
			idx[t.ID] = len(out)
			out = append(out, t)
		}
	}
	return out
}

func unionSet(prev, delta map[string]struct{}) map[string]struct{} {
	if len(delta) == 0 {
		return prev
	}
	if prev == nil {
		prev = map[string]struct{}{}
	}
	for k := range delta {
		prev[k] = struct{}{}
	}
	return prev
}

func mergeFeedback(prev, delta map[string]Feedback) map[string]Feedback {
	if prev == nil {
		prev = map[string]Feedback{}
	}
	for reviewer, fb := range delta {
		prev[reviewer] = fb
	}
	return prev
}

// SortedReviewers returns feedback map keys sorted, for deterministic
// iteration when building summaries or logs.
func SortedReviewers(m map[string]Feedback) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ClearPhaseFeedback empties the feedback map a phase produces on re-entry,
// per spec: "Feedback maps are cleared on re-entry to their producing phase."
func ClearPhaseFeedback(s WorkflowState, phase Phase) WorkflowState {
	switch phase {
	case PhaseValidation:
		s.ValidationFeedback = map[string]Feedback{}
	case PhaseVerification:
		s.VerificationFeedback = map[string]Feedback{}
	}
	return s
}
