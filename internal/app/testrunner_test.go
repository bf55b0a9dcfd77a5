package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/agent-orchestrator/internal/config"
)

func TestNewTestRunner_DefaultsToGoTest(t *testing.T) {
	dir := t.TempDir()
	run := NewTestRunner(dir, config.WorkflowConfig{})
	require.NotNil(t, run)
}

func TestNewTestRunner_RunsConfiguredCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := config.WorkflowConfig{TestCommand: []string{"echo", "3 passed, 0 failed"}}
	run := NewTestRunner(dir, cfg)

	outcome, err := run(context.Background(), nil, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, outcome.AllPassed)
	assert.Equal(t, "3 passed, 0 failed", outcome.Summary)
}

func TestNewTestRunner_FailingCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := config.WorkflowConfig{TestCommand: []string{"echo", "1 passed, 2 failed"}}
	run := NewTestRunner(dir, cfg)

	outcome, err := run(context.Background(), nil, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, outcome.AllPassed)
}

func TestNewTestRunner_UnparsableOutputFallsBackToExitCode(t *testing.T) {
	dir := t.TempDir()
	cfg := config.WorkflowConfig{TestCommand: []string{"echo", "no structured summary here"}}
	run := NewTestRunner(dir, cfg)

	outcome, err := run(context.Background(), nil, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, outcome.AllPassed)
	assert.Contains(t, outcome.Summary, "no structured summary here")
}

func TestNewTestRunner_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	cfg := config.WorkflowConfig{TestCommand: []string{"false"}}
	run := NewTestRunner(dir, cfg)

	outcome, err := run(context.Background(), nil, 5*time.Second)
	require.NoError(t, err)
	assert.False(t, outcome.AllPassed)
}

func TestNewTestRunner_RespectsTimeout(t *testing.T) {
	dir := t.TempDir()
	cfg := config.WorkflowConfig{TestCommand: []string{"sleep", "5"}}
	run := NewTestRunner(dir, cfg)

	start := time.Now()
	outcome, err := run(context.Background(), nil, 50*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, outcome.AllPassed)
	assert.Less(t, time.Since(start), 4*time.Second)
}
