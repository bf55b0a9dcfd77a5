// Package hooks runs .workflow/hooks/<name>.sh scripts at defined points in
// the workflow lifecycle, grounded on
// orchestrator/langgraph/integrations/hooks.py.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	gracePeriod    = 5 * time.Second
)

// Name enumerates the lifecycle points a hook can be registered for,
// matching orchestrator/langgraph/integrations/hooks.py's hook names.
type Name string

const (
	PreIteration  Name = "pre-iteration"
	PostIteration Name = "post-iteration"
	StopCheck     Name = "stop-check"
	PreTask       Name = "pre-task"
	PostTask      Name = "post-task"
	OnError       Name = "on-error"
	OnComplete    Name = "on-complete"
)

// stopCheckStop is the exit code a stop-check hook uses to request the
// workflow halt after the current iteration, per spec.md §6.
const stopCheckStop = 1

// Runner spawns hook scripts from a project's .workflow/hooks directory as
// opaque subprocesses, the same graceful-then-forceful termination pattern
// internal/agent/subprocess.go uses for agent binaries.
type Runner struct {
	ProjectDir string
	HooksDir   string
	Timeout    time.Duration
}

// New returns a Runner rooted at <projectDir>/.workflow/hooks.
func New(projectDir string) *Runner {
	return &Runner{
		ProjectDir: projectDir,
		HooksDir:   filepath.Join(projectDir, ".workflow", "hooks"),
		Timeout:    defaultTimeout,
	}
}

// Run spawns <name>.sh if present, passing vars as HOOK_<KEY> environment
// variables (JSON-encoded for slice/map values, per spec.md §6). It returns
// stop=true only for a StopCheck hook that exits with stopCheckStop; a
// missing script is not an error, it's simply a no-op.
func (r *Runner) Run(ctx context.Context, name Name, vars map[string]any) (stop bool, err error) {
	path := filepath.Join(r.HooksDir, string(name)+".sh")
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		return false, nil
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, path)
	cmd.Dir = r.ProjectDir
	env, err := hookEnv(vars)
	if err != nil {
		return false, fmt.Errorf("hooks: encoding vars for %s: %w", name, err)
	}
	cmd.Env = append(os.Environ(), env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = gracePeriod

	runErr := cmd.Run()
	if runErr == nil {
		return false, nil
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		if name == StopCheck && exitErr.ExitCode() == stopCheckStop {
			return true, nil
		}
		return false, fmt.Errorf("hooks: %s exited %d: %s", name, exitErr.ExitCode(), stderr.String())
	}
	return false, fmt.Errorf("hooks: running %s: %w", name, runErr)
}

// hookEnv renders vars into HOOK_<UPPER_KEY>=value pairs, JSON-encoding
// anything that isn't already a string.
func hookEnv(vars map[string]any) ([]string, error) {
	out := make([]string, 0, len(vars))
	for k, v := range vars {
		key := "HOOK_" + strings.ToUpper(k)
		switch val := v.(type) {
		case string:
			out = append(out, key+"="+val)
		default:
			blob, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			out = append(out, key+"="+string(blob))
		}
	}
	return out, nil
}
