package observability

import (
	"fmt"
	"sort"
	"strings"
)

// TaskSummary is one task's final outcome, as rendered in the handoff
// brief.
type TaskSummary struct {
	ID     string
	Title  string
	Status string
	Error  string
}

// HandoffBrief is the human-readable end-of-run report, grounded on
// orchestrator/utils/handoff.py's markdown summary.
type HandoffBrief struct {
	ProjectName    string
	FinalPhase     int
	Success        bool
	CompletedTasks []TaskSummary
	FailedTasks    []TaskSummary
	UnresolvedErrs map[string]int
}

// Render produces the markdown handoff document, grouping completed and
// failed tasks and surfacing the unresolved error summary so an operator
// picking up the project cold sees what needs attention first.
func (b HandoffBrief) Render() string {
	var sb strings.Builder

	status := "incomplete"
	if b.Success {
		status = "complete"
	}
	fmt.Fprintf(&sb, "# Handoff: %s\n\n", b.ProjectName)
	fmt.Fprintf(&sb, "Status: **%s** (reached phase %d)\n\n", status, b.FinalPhase)

	fmt.Fprintf(&sb, "## Completed tasks (%d)\n\n", len(b.CompletedTasks))
	for _, t := range sortedByID(b.CompletedTasks) {
		fmt.Fprintf(&sb, "- [x] %s: %s\n", t.ID, t.Title)
	}

	fmt.Fprintf(&sb, "\n## Failed tasks (%d)\n\n", len(b.FailedTasks))
	for _, t := range sortedByID(b.FailedTasks) {
		fmt.Fprintf(&sb, "- [ ] %s: %s — %s\n", t.ID, t.Title, t.Error)
	}

	if len(b.UnresolvedErrs) > 0 {
		sb.WriteString("\n## Unresolved errors\n\n")
		keys := make([]string, 0, len(b.UnresolvedErrs))
		for k := range b.UnresolvedErrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %d\n", k, b.UnresolvedErrs[k])
		}
	}

	return sb.String()
}

func sortedByID(tasks []TaskSummary) []TaskSummary {
	out := make([]TaskSummary, len(tasks))
	copy(out, tasks)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
