package nodes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/config"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

// reviewerResult is one reviewer's outcome, grounded on
// orchestrator/langgraph/utils/reviewer_fallback.py's ReviewerResult.
type reviewerResult struct {
	feedback workflow.Feedback
	success  bool
	timedOut bool
	err      string
}

// runReviewer invokes a single named reviewer agent with the given prompt,
// bounded by cfg.ReviewerTimeoutSeconds, and decodes its reply into a
// workflow.Feedback, matching the reviewer envelope of spec.md §6
// ({approved, score, assessment, concerns, blocking_issues, summary}).
func runReviewer(ctx context.Context, a agent.Agent, kind, prompt string, cfg config.ReviewConfig) reviewerResult {
	timeout := time.Duration(cfg.ReviewerTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := a.Invoke(runCtx, agent.InvokeRequest{Kind: kind, Prompt: prompt, Timeout: timeout})
	if err != nil {
		return reviewerResult{success: false, err: err.Error()}
	}
	if res.Error == agent.ErrorTimeout {
		return reviewerResult{success: false, timedOut: true, err: fmt.Sprintf("timeout after %s", timeout)}
	}
	if res.Error != "" || !res.Success {
		return reviewerResult{success: false, err: res.Error}
	}

	raw, jerr := agent.ExtractJSON(res.Stdout)
	if jerr != nil {
		return reviewerResult{success: false, err: "no reviewer envelope found: " + jerr.Error()}
	}

	var fb workflow.Feedback
	if derr := decodeFeedback(raw, &fb); derr != nil {
		return reviewerResult{success: false, err: "malformed reviewer envelope: " + derr.Error()}
	}
	fb.RawOutput = res.Stdout
	return reviewerResult{feedback: fb, success: true}
}

// runReviewersConcurrently invokes the cursor and gemini reviewers at once,
// each in its own goroutine joined on a WaitGroup, the way
// examples/multi-llm-review/workflow/nodes.go's ReviewBatchNode calls every
// configured provider concurrently for a batch instead of chaining calls
// one after another. Each call still carries its own
// cfg.ReviewerTimeoutSeconds bound via runReviewer, so a slow or hung
// reviewer can't hold up the other's result.
func runReviewersConcurrently(ctx context.Context, deps *Deps, prompt string, phase workflow.Phase, errType string) (map[string]workflow.Feedback, []workflow.WorkflowError) {
	kinds := []string{"cursor", "gemini"}
	results := make([]reviewerResult, len(kinds))
	present := make([]bool, len(kinds))

	var wg sync.WaitGroup
	for i, kind := range kinds {
		a, ok := deps.agentFor(kind)
		if !ok {
			continue
		}
		present[i] = true
		wg.Add(1)
		go func(i int, kind string, a agent.Agent) {
			defer wg.Done()
			results[i] = runReviewer(ctx, a, kind, prompt, deps.Config.Review)
		}(i, kind, a)
	}
	wg.Wait()

	feedback := map[string]workflow.Feedback{}
	var errs []workflow.WorkflowError
	for i, kind := range kinds {
		if !present[i] {
			continue
		}
		if !results[i].success {
			errs = append(errs, newError(errType, kind+" reviewer: "+results[i].err, "", int(phase)))
			continue
		}
		feedback[kind] = results[i].feedback
	}
	return feedback, errs
}

// applySingleAgentPenalty deducts cfg.SingleAgentScorePenalty from a lone
// surviving reviewer's score and re-derives approval from the penalized
// score, matching spec.md §8 Testable Property 12 (penalty monotonicity):
// a review that would be rejected at score-penalty is never accepted.
func applySingleAgentPenalty(fb workflow.Feedback, cfg config.ReviewConfig) workflow.Feedback {
	penalized := fb.Score - cfg.SingleAgentScorePenalty
	if penalized < 0 {
		penalized = 0
	}
	fb.Score = penalized
	fb.Approved = fb.Approved && penalized >= cfg.SingleAgentMinimumScore
	fb.Summary = "[Single-agent review, score penalty applied] " + fb.Summary
	return fb
}

// mergeOutcome is merge-validation/merge-verification's decision.
type mergeOutcome struct {
	Approved       bool
	Feedback       workflow.Feedback
	UsedFallback   bool
	FallbackReason string
	Decision       workflow.Decision
}

// mergeReviews implements
// orchestrator/langgraph/utils/reviewer_fallback.py's
// check_single_agent_approval + the "both succeeded" resolution path: if
// both reviewers produced feedback, approval requires both approving and
// the final score is their minimum (most conservative); if only one
// succeeded, single-agent fallback applies a penalty (when configured); if
// neither succeeded, escalate.
func mergeReviews(feedback map[string]workflow.Feedback, cfg config.ReviewConfig) mergeOutcome {
	cursor, hasCursor := feedback["cursor"]
	gemini, hasGemini := feedback["gemini"]

	if hasCursor && hasGemini {
		score := cursor.Score
		if gemini.Score < score {
			score = gemini.Score
		}
		approved := cursor.Approved && gemini.Approved
		merged := workflow.Feedback{
			Approved:       approved,
			Score:          score,
			BlockingIssues: append(append([]string{}, cursor.BlockingIssues...), gemini.BlockingIssues...),
			Summary:        fmt.Sprintf("cursor: %s | gemini: %s", cursor.Summary, gemini.Summary),
		}
		decision := workflow.DecisionContinue
		if !approved {
			decision = workflow.DecisionRetry
		}
		return mergeOutcome{Approved: approved, Feedback: merged, Decision: decision}
	}

	if !cfg.AllowSingleAgentApproval {
		return mergeOutcome{Decision: workflow.DecisionEscalate, FallbackReason: "single-agent approval not allowed"}
	}

	var solo workflow.Feedback
	var agentName string
	switch {
	case !hasCursor && !hasGemini:
		return mergeOutcome{Decision: workflow.DecisionEscalate, FallbackReason: "no reviewer succeeded"}
	case cfg.SingleAgentPreference == "cursor" && hasCursor:
		solo, agentName = cursor, "cursor"
	case cfg.SingleAgentPreference == "gemini" && hasGemini:
		solo, agentName = gemini, "gemini"
	case hasCursor:
		solo, agentName = cursor, "cursor"
	default:
		solo, agentName = gemini, "gemini"
	}

	penalized := applySingleAgentPenalty(solo, cfg)
	reason := fmt.Sprintf("single-agent approval from %s with penalized score %.1f", agentName, penalized.Score)
	decision := workflow.DecisionContinue
	if !penalized.Approved {
		decision = workflow.DecisionRetry
		reason = fmt.Sprintf("score %.1f below minimum %.1f", penalized.Score, cfg.SingleAgentMinimumScore)
	}
	return mergeOutcome{
		Approved: penalized.Approved, Feedback: penalized, UsedFallback: true,
		FallbackReason: reason, Decision: decision,
	}
}
