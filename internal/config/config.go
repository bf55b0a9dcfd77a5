// Package config loads per-project workflow configuration from
// .workflow/config.toml, field-for-field matching spec.md §6's keys.
// Grounded on AbdelazizMoustafa10m-Raven's internal/config package (TOML
// structure shape, find-upward file resolution).
package config

// Config is the top-level configuration, mapping to .workflow/config.toml.
type Config struct {
	Validation ValidationConfig `toml:"validation"`
	Quality    QualityConfig    `toml:"quality"`
	Security   SecurityConfig   `toml:"security"`
	Workflow   WorkflowConfig   `toml:"workflow"`
	Retry      RetryConfig      `toml:"retry"`
	Review     ReviewConfig     `toml:"review"`
}

// ValidationConfig maps to [validation].
type ValidationConfig struct {
	ValidationThreshold   float64 `toml:"validation_threshold"`
	VerificationThreshold float64 `toml:"verification_threshold"`
	MaxPhaseRetries       int     `toml:"max_phase_retries"`
}

// QualityConfig maps to [quality].
type QualityConfig struct {
	CoverageThreshold float64 `toml:"coverage_threshold"`
	CoverageBlocking  bool    `toml:"coverage_blocking"`
	BuildRequired     bool    `toml:"build_required"`
	LintRequired      bool    `toml:"lint_required"`
}

// SecurityConfig maps to [security].
type SecurityConfig struct {
	Enabled            bool     `toml:"enabled"`
	BlockingSeverities []string `toml:"blocking_severities"`
}

// WorkflowFeatures maps to [workflow.features].
type WorkflowFeatures struct {
	ProductValidation bool `toml:"product_validation"`
	EnvironmentCheck  bool `toml:"environment_check"`
	BuildVerification bool `toml:"build_verification"`
	CoverageCheck     bool `toml:"coverage_check"`
	SecurityScan      bool `toml:"security_scan"`
	ApprovalGates     bool `toml:"approval_gates"`
}

// WorkflowConfig maps to [workflow].
type WorkflowConfig struct {
	Features         WorkflowFeatures `toml:"features"`
	ApprovalPhases   []int            `toml:"approval_phases"`
	MaxParallelTasks int              `toml:"max_parallel_tasks"`

	// TestCommand is the argv used to verify a task's test files, run
	// directly (no shell) the same way internal/agent/subprocess.go
	// invokes agent binaries. Empty falls back to "go test ./...".
	TestCommand []string `toml:"test_command"`
}

// RetryPolicy maps to one of [retry.agent] / [retry.implementation].
type RetryPolicy struct {
	MaxAttempts     int     `toml:"max_attempts"`
	InitialInterval float64 `toml:"initial_interval"`
	BackoffFactor   float64 `toml:"backoff_factor"`
	Jitter          float64 `toml:"jitter"`
}

// RetryConfig maps to [retry].
type RetryConfig struct {
	Agent                 RetryPolicy `toml:"agent"`
	Implementation        RetryPolicy `toml:"implementation"`
	MaxTaskLoopIterations int         `toml:"max_task_loop_iterations"`
}

// ReviewConfig maps to [review], grounded on
// orchestrator/langgraph/utils/reviewer_fallback.py's ReviewConfig usage.
type ReviewConfig struct {
	ReviewerTimeoutSeconds   int     `toml:"reviewer_timeout_seconds"`
	AllowSingleAgentApproval bool    `toml:"allow_single_agent_approval"`
	SingleAgentScorePenalty  float64 `toml:"single_agent_score_penalty"`
	SingleAgentMinimumScore  float64 `toml:"single_agent_minimum_score"`
	SingleAgentPreference    string  `toml:"single_agent_preference"`
	LogTimeouts              bool    `toml:"log_timeouts"`
}

// Default returns spec.md §6's documented defaults.
func Default() Config {
	return Config{
		Validation: ValidationConfig{ValidationThreshold: 6.0, VerificationThreshold: 7.0, MaxPhaseRetries: 3},
		Quality:    QualityConfig{CoverageThreshold: 70.0, CoverageBlocking: false, BuildRequired: true, LintRequired: false},
		Security:   SecurityConfig{Enabled: true, BlockingSeverities: []string{"critical", "high"}},
		Workflow: WorkflowConfig{
			Features: WorkflowFeatures{
				ProductValidation: true, EnvironmentCheck: true, BuildVerification: true,
				CoverageCheck: true, SecurityScan: true, ApprovalGates: false,
			},
			MaxParallelTasks: 3,
			TestCommand:      []string{"go", "test", "./..."},
		},
		Retry: RetryConfig{
			Agent:                 RetryPolicy{MaxAttempts: 3, InitialInterval: 1.0, BackoffFactor: 2.0, Jitter: 0.1},
			Implementation:        RetryPolicy{MaxAttempts: 3, InitialInterval: 1.0, BackoffFactor: 2.0, Jitter: 0.1},
			MaxTaskLoopIterations: 10,
		},
		Review: ReviewConfig{
			ReviewerTimeoutSeconds: 300, AllowSingleAgentApproval: true,
			SingleAgentScorePenalty: 1.0, SingleAgentMinimumScore: 6.0,
			SingleAgentPreference: "any", LogTimeouts: true,
		},
	}
}

// HasSeverity reports whether sev (case-sensitive, e.g. "critical") is in
// the configured blocking set.
func (s SecurityConfig) HasSeverity(sev string) bool {
	for _, b := range s.BlockingSeverities {
		if b == sev {
			return true
		}
	}
	return false
}
