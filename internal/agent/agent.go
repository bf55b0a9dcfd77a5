// Package agent invokes external coding tools and hosted LLM reviewers
// behind one interface, so node implementations never care whether a given
// agent kind is a CLI subprocess or a direct API call.
package agent

import (
	"context"
	"time"
)

// Agent is the contract every agent backend (subprocess or API-backed)
// satisfies. Implementations never parse stdout beyond UTF-8 decoding;
// JSON extraction is the caller's responsibility (see ExtractJSON).
type Agent interface {
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
}

// InvokeRequest describes one agent call.
type InvokeRequest struct {
	// Kind names the agent type: "claude", "cursor", "gemini", or any other
	// key the runner's registry recognizes.
	Kind string

	Prompt       string
	AllowedTools []string
	MaxTurns     int
	Timeout      time.Duration
	EnvOverrides map[string]string
}

// InvokeResult is the unified return shape for every agent call, resolving
// spec.md §9's open question about AgentResult/run() shape inconsistency:
// every backend returns exactly this struct, never a dataclass-shaped
// sibling.
type InvokeResult struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration

	// Error is one of "", "timeout", "crashed" per spec.md §4.2.
	Error string
}

const (
	ErrorTimeout = "timeout"
	ErrorCrashed = "crashed"
)
