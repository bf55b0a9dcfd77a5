package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/anthropics/agent-orchestrator/internal/events"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// MemRepository is an in-memory Repository, grounded on graph/store's
// MemStore[S] (same map-of-slices-under-a-mutex shape). Designed for tests
// and short-lived runs; data does not survive process exit.
type MemRepository struct {
	mu sync.RWMutex

	states      map[string]workflow.WorkflowState
	phaseOutput map[string][]string // project|phase -> outputs, append order
	tasks       map[string]map[string]workflow.Task
	logs        map[string][]LogEntry
	evts        map[string][]events.Event
	checkpoints map[string][]Checkpoint
}

// NewMemRepository creates an empty in-memory repository.
func NewMemRepository() *MemRepository {
	return &MemRepository{
		states:      make(map[string]workflow.WorkflowState),
		phaseOutput: make(map[string][]string),
		tasks:       make(map[string]map[string]workflow.Task),
		logs:        make(map[string][]LogEntry),
		evts:        make(map[string][]events.Event),
		checkpoints: make(map[string][]Checkpoint),
	}
}

func phaseKey(project string, phase int) string {
	return fmt.Sprintf("%s|%d", project, phase)
}

func (m *MemRepository) SaveWorkflowState(_ context.Context, project string, state workflow.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[project] = state
	return nil
}

func (m *MemRepository) LoadWorkflowState(_ context.Context, project string) (workflow.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[project]
	if !ok {
		return workflow.WorkflowState{}, ErrNotFound
	}
	return s, nil
}

func (m *MemRepository) AppendPhaseOutput(_ context.Context, project string, phase int, output string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := phaseKey(project, phase)
	m.phaseOutput[key] = append(m.phaseOutput[key], output)
	return nil
}

func (m *MemRepository) LatestPhaseOutput(_ context.Context, project string, phase int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	outs := m.phaseOutput[phaseKey(project, phase)]
	if len(outs) == 0 {
		return "", ErrNotFound
	}
	return outs[len(outs)-1], nil
}

func (m *MemRepository) UpsertTask(_ context.Context, project string, task workflow.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tasks[project] == nil {
		m.tasks[project] = make(map[string]workflow.Task)
	}
	m.tasks[project][task.ID] = task
	return nil
}

func (m *MemRepository) ListTasks(_ context.Context, project string) ([]workflow.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]workflow.Task, 0, len(m.tasks[project]))
	for _, t := range m.tasks[project] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemRepository) AppendLog(_ context.Context, project string, entry LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.logs[project] = append(m.logs[project], entry)
	return nil
}

func (m *MemRepository) QueryLogs(_ context.Context, project string, filter LogFilter) ([]LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []LogEntry
	for i := len(m.logs[project]) - 1; i >= 0; i-- {
		e := m.logs[project][i]
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.TaskID != "" && e.TaskID != filter.TaskID {
			continue
		}
		if !filter.OlderThan.IsZero() && !e.CreatedAt.Before(filter.OlderThan) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemRepository) AppendEvent(_ context.Context, project string, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evts[project] = append(m.evts[project], ev)
	return nil
}

func (m *MemRepository) QueryEvents(_ context.Context, project string, filter EventFilter) ([]events.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []events.Event
	for _, ev := range m.evts[project] {
		if filter.HasMinPriority && !meetsMinPriority(ev.Priority, filter.MinPriority) {
			continue
		}
		if !filter.Since.IsZero() {
			ts, err := time.Parse(time.RFC3339, ev.Timestamp)
			if err == nil && ts.Before(filter.Since) {
				continue
			}
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemRepository) DeleteEventsOlderThan(_ context.Context, project string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []events.Event
	removed := 0
	for _, ev := range m.evts[project] {
		ts, err := time.Parse(time.RFC3339, ev.Timestamp)
		if err == nil && ts.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	m.evts[project] = kept
	return removed, nil
}

func (m *MemRepository) SaveCheckpoint(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.checkpoints[cp.Project] = append(m.checkpoints[cp.Project], cp)
	return nil
}

func (m *MemRepository) ListCheckpoints(_ context.Context, project string) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Checkpoint, len(m.checkpoints[project]))
	copy(out, m.checkpoints[project])
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemRepository) Close() error { return nil }

var priorityRank = map[events.Priority]int{events.High: 0, events.Medium: 1, events.Low: 2}

func meetsMinPriority(p, min events.Priority) bool {
	r, ok := priorityRank[p]
	if !ok {
		r = priorityRank[events.Low]
	}
	mr, ok := priorityRank[min]
	if !ok {
		mr = priorityRank[events.Low]
	}
	return r <= mr
}
