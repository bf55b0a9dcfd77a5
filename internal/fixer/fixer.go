// Package fixer implements the bug-fix subgraph a verification or quality
// gate failure drops into before the workflow gives up and escalates:
// triage the failure, diagnose a cause, apply a fix (optionally preceded by
// research when the first diagnosis doesn't hold), and re-verify. Grounded
// on orchestrator/langgraph/subgraphs/fixer_graph.py.
package fixer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/agent-orchestrator/internal/agent"
)

// CircuitBreaker trips after a run of consecutive failures, so a
// pathologically broken task doesn't burn through the fixer loop forever.
type CircuitBreaker struct {
	Threshold int
	failures  int
}

// NewCircuitBreaker returns a breaker tripping after threshold consecutive
// failures (defaulting to 3 when threshold <= 0).
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &CircuitBreaker{Threshold: threshold}
}

// RecordFailure bumps the consecutive-failure count and reports whether the
// breaker has now tripped.
func (b *CircuitBreaker) RecordFailure() (tripped bool) {
	b.failures++
	return b.failures >= b.Threshold
}

// RecordSuccess resets the consecutive-failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.failures = 0
}

// Open reports whether the breaker has tripped.
func (b *CircuitBreaker) Open() bool {
	return b.failures >= b.Threshold
}

// Diagnosis is the fixer's belief about why a task or phase failed.
type Diagnosis struct {
	Cause         string  `json:"cause"`
	Confidence    float64 `json:"confidence"`
	FixPlan       string  `json:"fix_plan"`
	NeedsResearch bool    `json:"needs_research"`
}

// Outcome is the fixer subgraph's final result for one attempt.
type Outcome struct {
	Fixed        bool
	Diagnosis    Diagnosis
	Researched   bool
	Validated    bool
	Verified     bool
	CircuitOpen  bool
	FinalMessage string
}

// riskKeywords flags a diagnosis or fix plan as security-sensitive, the
// fixer_graph.py comment's "e.g. security check" gate. Any hit routes the
// attempt through validate before apply instead of straight to apply.
var riskKeywords = []string{
	"auth", "credential", "password", "secret", "token", "permission",
	"security", "crypto", "injection", "ssrf", "privilege", "session",
}

// isRisky reports whether diag or any of touchedFiles looks security-
// sensitive enough to warrant validating the fix plan before applying it.
func isRisky(diag Diagnosis, touchedFiles []string) bool {
	haystacks := []string{diag.Cause, diag.FixPlan}
	haystacks = append(haystacks, touchedFiles...)
	for _, h := range haystacks {
		lower := strings.ToLower(h)
		for _, kw := range riskKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// Fixer drives one error through triage -> diagnose -> {apply |
// research+apply} -> verify.
type Fixer struct {
	Agent   agent.Agent
	Breaker *CircuitBreaker
}

// Attempt runs one pass of the subgraph against a failure description,
// re-verifying with verify afterward. touchedFiles is the task's declared
// files-to-modify list, used only to decide whether the fix plan needs a
// validate pass before it's applied.
func (f *Fixer) Attempt(ctx context.Context, failureSummary string, touchedFiles []string, verify func(ctx context.Context) (bool, string)) Outcome {
	if f.Breaker != nil && f.Breaker.Open() {
		return Outcome{CircuitOpen: true, FinalMessage: "circuit breaker open, refusing further fix attempts"}
	}

	diag, err := f.diagnose(ctx, failureSummary)
	if err != nil {
		f.recordFailure()
		return Outcome{FinalMessage: "diagnosis failed: " + err.Error()}
	}

	if diag.NeedsResearch {
		if rerr := f.research(ctx, &diag); rerr != nil {
			f.recordFailure()
			return Outcome{Diagnosis: diag, FinalMessage: "research failed: " + rerr.Error()}
		}
	}

	validated := false
	if isRisky(diag, touchedFiles) {
		approved, reason, verr := f.validate(ctx, diag)
		if verr != nil {
			f.recordFailure()
			return Outcome{Diagnosis: diag, Researched: diag.NeedsResearch, FinalMessage: "validation failed: " + verr.Error()}
		}
		if !approved {
			f.recordFailure()
			return Outcome{Diagnosis: diag, Researched: diag.NeedsResearch, FinalMessage: "fix plan rejected at validation: " + reason}
		}
		validated = true
	}

	if err := f.apply(ctx, diag); err != nil {
		f.recordFailure()
		return Outcome{Diagnosis: diag, Researched: diag.NeedsResearch, Validated: validated, FinalMessage: "fix application failed: " + err.Error()}
	}

	ok, message := verify(ctx)
	if !ok {
		f.recordFailure()
		return Outcome{Diagnosis: diag, Researched: diag.NeedsResearch, Validated: validated, FinalMessage: "fix did not resolve the failure: " + message}
	}

	f.recordSuccess()
	return Outcome{Fixed: true, Verified: true, Validated: validated, Diagnosis: diag, Researched: diag.NeedsResearch, FinalMessage: "fixed"}
}

func (f *Fixer) recordFailure() {
	if f.Breaker != nil {
		f.Breaker.RecordFailure()
	}
}

func (f *Fixer) recordSuccess() {
	if f.Breaker != nil {
		f.Breaker.RecordSuccess()
	}
}

func (f *Fixer) diagnose(ctx context.Context, failureSummary string) (Diagnosis, error) {
	if f.Agent == nil {
		return Diagnosis{}, fmt.Errorf("fixer: no diagnosis agent configured")
	}
	prompt := fmt.Sprintf("Diagnose the root cause of this failure and propose a fix plan. Respond with JSON: "+
		"{cause, confidence (0-1), fix_plan, needs_research}.\nFailure:\n%s", failureSummary)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()
	res, err := f.Agent.Invoke(ctx, agent.InvokeRequest{Kind: "claude", Prompt: prompt, Timeout: 3 * time.Minute})
	if err != nil || !res.Success {
		return Diagnosis{}, fmt.Errorf("diagnosis agent invocation failed")
	}
	raw, jerr := agent.ExtractJSON(res.Stdout)
	if jerr != nil {
		return Diagnosis{}, jerr
	}
	var d Diagnosis
	if derr := json.Unmarshal(raw, &d); derr != nil {
		return Diagnosis{}, derr
	}
	return d, nil
}

func (f *Fixer) research(ctx context.Context, diag *Diagnosis) error {
	if f.Agent == nil {
		return fmt.Errorf("fixer: no research agent configured")
	}
	prompt := "Research documentation and prior art for: " + diag.Cause + ". Refine the fix plan. Respond with JSON: {fix_plan}."
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()
	res, err := f.Agent.Invoke(ctx, agent.InvokeRequest{Kind: "claude", Prompt: prompt, Timeout: 3 * time.Minute})
	if err != nil || !res.Success {
		return fmt.Errorf("research agent invocation failed")
	}
	raw, jerr := agent.ExtractJSON(res.Stdout)
	if jerr != nil {
		return jerr
	}
	var refined struct {
		FixPlan string `json:"fix_plan"`
	}
	if derr := json.Unmarshal(raw, &refined); derr != nil {
		return derr
	}
	if refined.FixPlan != "" {
		diag.FixPlan = refined.FixPlan
	}
	return nil
}

// validate asks the agent to review a security-sensitive fix plan before it
// touches the codebase, the "Validate: Optional validation of the fix plan
// (e.g. security check)" step fixer_graph.py inserts between diagnose/
// research and apply for risky diagnoses.
func (f *Fixer) validate(ctx context.Context, diag Diagnosis) (approved bool, reason string, err error) {
	if f.Agent == nil {
		return false, "", fmt.Errorf("fixer: no validation agent configured")
	}
	prompt := fmt.Sprintf("This fix plan touches security-sensitive code. Review it for safety before it is applied. "+
		"Cause: %s\nFix plan: %s\nRespond with JSON: {approved (bool), reason}.", diag.Cause, diag.FixPlan)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()
	res, ierr := f.Agent.Invoke(ctx, agent.InvokeRequest{Kind: "claude", Prompt: prompt, Timeout: 3 * time.Minute})
	if ierr != nil || !res.Success {
		return false, "", fmt.Errorf("validation agent invocation failed")
	}
	raw, jerr := agent.ExtractJSON(res.Stdout)
	if jerr != nil {
		return false, "", jerr
	}
	var v struct {
		Approved bool   `json:"approved"`
		Reason   string `json:"reason"`
	}
	if derr := json.Unmarshal(raw, &v); derr != nil {
		return false, "", derr
	}
	return v.Approved, v.Reason, nil
}

func (f *Fixer) apply(ctx context.Context, diag Diagnosis) error {
	if f.Agent == nil {
		return fmt.Errorf("fixer: no apply agent configured")
	}
	prompt := "Apply this fix plan to the codebase: " + diag.FixPlan
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	res, err := f.Agent.Invoke(ctx, agent.InvokeRequest{Kind: "claude", Prompt: prompt, Timeout: 5 * time.Minute})
	if err != nil || !res.Success {
		return fmt.Errorf("apply agent invocation failed")
	}
	return nil
}
