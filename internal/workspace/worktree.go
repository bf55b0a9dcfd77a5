// Package workspace isolates parallel task implementation in filesystem
// git worktrees, so two tasks running concurrently in the same project
// never touch each other's working tree. Grounded on
// orchestrator/langgraph/subgraphs/task_graph.py's worktree-per-task
// parallel isolation, reimplemented with the same exec.CommandContext
// graceful-cancellation settings (SIGTERM via cmd.Cancel, cmd.WaitDelay)
// internal/agent/subprocess.go uses for agent binaries, since git is this system's only other subprocess
// concern.
package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// gracePeriod mirrors internal/agent/subprocess.go's termination grace.
const gracePeriod = 5 * time.Second

// Worktree is one task's isolated git worktree: a checkout of its own
// branch under a scratch directory, merged back into the project's working
// branch (or discarded) once the task's implementation step finishes.
type Worktree struct {
	TaskID     string
	Branch     string
	Path       string
	ProjectDir string
}

// Manager creates and tears down per-task worktrees rooted under
// <ProjectDir>/.workflow/worktrees.
type Manager struct {
	ProjectDir string
}

func (m *Manager) worktreeDir(taskID string) string {
	return filepath.Join(m.ProjectDir, ".workflow", "worktrees", taskID)
}

// Create adds a new worktree on a fresh branch named task/<taskID>, branched
// from the project's current HEAD.
func (m *Manager) Create(ctx context.Context, taskID string) (*Worktree, error) {
	path := m.worktreeDir(taskID)
	branch := "task/" + taskID

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("workspace: preparing worktree root: %w", err)
	}

	if _, _, err := m.run(ctx, "worktree", "add", path, "-b", branch); err != nil {
		return nil, fmt.Errorf("workspace: git worktree add for task %s: %w", taskID, err)
	}

	return &Worktree{TaskID: taskID, Branch: branch, Path: path, ProjectDir: m.ProjectDir}, nil
}

// Merge commits the worktree's changes on its branch and merges that branch
// into the project's current branch, in task-id order relative to sibling
// merges (the caller is responsible for sequencing calls across a parallel
// batch). A merge conflict or failed commit is reported as an error and
// leaves the worktree in place for inspection; a conflicted merge is
// aborted, so the project's tree is not left partially merged.
func (m *Manager) Merge(ctx context.Context, wt *Worktree) error {
	if _, _, err := m.run(ctx, "-C", wt.Path, "add", "-A"); err != nil {
		return fmt.Errorf("workspace: staging changes for task %s: %w", wt.TaskID, err)
	}
	if _, stderr, err := m.run(ctx, "-C", wt.Path, "commit", "--allow-empty", "-m", "task "+wt.TaskID); err != nil {
		return fmt.Errorf("workspace: committing task %s: %w (%s)", wt.TaskID, err, stderr)
	}
	if _, stderr, err := m.run(ctx, "merge", "--no-edit", wt.Branch); err != nil {
		_, _, _ = m.run(ctx, "merge", "--abort")
		return fmt.Errorf("workspace: merging task %s: %w (%s)", wt.TaskID, err, stderr)
	}
	return nil
}

// Remove deletes the worktree and its branch. Called whether or not Merge
// succeeded, so a failed task never leaves a stray checkout behind.
func (m *Manager) Remove(ctx context.Context, wt *Worktree) error {
	_, _, _ = m.run(ctx, "worktree", "remove", "--force", wt.Path)
	_, _, err := m.run(ctx, "branch", "-D", wt.Branch)
	return err
}

func (m *Manager) run(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = m.ProjectDir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=orchestrator", "GIT_AUTHOR_EMAIL=orchestrator@localhost",
		"GIT_COMMITTER_NAME=orchestrator", "GIT_COMMITTER_EMAIL=orchestrator@localhost")
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = gracePeriod

	err = cmd.Run()
	return out.String(), errBuf.String(), err
}
