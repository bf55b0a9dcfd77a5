package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/hooks"
)

type fakeAgent struct{}

func (fakeAgent) Invoke(ctx context.Context, req agent.InvokeRequest) (agent.InvokeResult, error) {
	return agent.InvokeResult{}, nil
}

func TestDeps_AgentFor(t *testing.T) {
	d := &Deps{Agents: map[string]agent.Agent{"claude": fakeAgent{}}}

	a, ok := d.agentFor("claude")
	assert.True(t, ok)
	assert.NotNil(t, a)

	_, ok = d.agentFor("missing")
	assert.False(t, ok)
}

func TestDeps_RunHook_NilHooksIsNoop(t *testing.T) {
	d := &Deps{}
	stop := d.runHook(context.Background(), hooks.PreTask, nil)
	assert.False(t, stop)
}

func TestDeps_RunHook_MissingScriptIsNoop(t *testing.T) {
	d := &Deps{Hooks: hooks.New(t.TempDir())}
	stop := d.runHook(context.Background(), hooks.PreTask, map[string]any{"task_id": "t1"})
	assert.False(t, stop)
}

func TestNewError_StampsFields(t *testing.T) {
	err := newError("build_error", "compile failed", "task-1", 3)
	assert.Equal(t, "build_error", err.Type)
	assert.Equal(t, "compile failed", err.Message)
	assert.Equal(t, "task-1", err.TaskID)
	assert.Equal(t, 3, err.Phase)
	assert.False(t, err.Timestamp.IsZero())
}
