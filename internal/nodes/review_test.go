package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/anthropics/agent-orchestrator/internal/agent"
	"github.com/anthropics/agent-orchestrator/internal/config"
	"github.com/anthropics/agent-orchestrator/internal/workflow"
)

func TestRunReviewer_Success(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{
		{Success: true, Stdout: `{"approved":true,"score":8.5,"summary":"looks solid"}`},
	}}
	result := runReviewer(context.Background(), fake, "cursor", "review this", config.ReviewConfig{})
	assert.True(t, result.success)
	assert.True(t, result.feedback.Approved)
	assert.Equal(t, 8.5, result.feedback.Score)
}

func TestRunReviewer_AgentFailure(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: false, Error: "crashed"}}}
	result := runReviewer(context.Background(), fake, "cursor", "review this", config.ReviewConfig{})
	assert.False(t, result.success)
	assert.Equal(t, "crashed", result.err)
}

func TestRunReviewer_Timeout(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: false, Error: agent.ErrorTimeout}}}
	result := runReviewer(context.Background(), fake, "cursor", "review this", config.ReviewConfig{ReviewerTimeoutSeconds: 5})
	assert.False(t, result.success)
	assert.True(t, result.timedOut)
}

func TestRunReviewer_UnparsableOutput(t *testing.T) {
	fake := &scriptedAgent{responses: []agent.InvokeResult{{Success: true, Stdout: "no json here"}}}
	result := runReviewer(context.Background(), fake, "cursor", "review this", config.ReviewConfig{})
	assert.False(t, result.success)
}

func TestApplySingleAgentPenalty_RejectsBelowMinimum(t *testing.T) {
	cfg := config.ReviewConfig{SingleAgentScorePenalty: 2.0, SingleAgentMinimumScore: 7.0}
	fb := workflow.Feedback{Approved: true, Score: 8.0, Summary: "good"}
	penalized := applySingleAgentPenalty(fb, cfg)
	assert.Equal(t, 6.0, penalized.Score)
	assert.False(t, penalized.Approved)
	assert.Contains(t, penalized.Summary, "Single-agent review")
}

func TestApplySingleAgentPenalty_NeverGoesNegative(t *testing.T) {
	cfg := config.ReviewConfig{SingleAgentScorePenalty: 10.0, SingleAgentMinimumScore: 0.0}
	penalized := applySingleAgentPenalty(workflow.Feedback{Score: 3.0}, cfg)
	assert.Equal(t, 0.0, penalized.Score)
}

func TestMergeReviews_BothApproveTakesMinimumScore(t *testing.T) {
	feedback := map[string]workflow.Feedback{
		"cursor": {Approved: true, Score: 9.0},
		"gemini": {Approved: true, Score: 7.0},
	}
	outcome := mergeReviews(feedback, config.ReviewConfig{})
	assert.True(t, outcome.Approved)
	assert.Equal(t, 7.0, outcome.Feedback.Score)
	assert.Equal(t, workflow.DecisionContinue, outcome.Decision)
}

func TestMergeReviews_EitherRejectsFailsApproval(t *testing.T) {
	feedback := map[string]workflow.Feedback{
		"cursor": {Approved: true, Score: 9.0},
		"gemini": {Approved: false, Score: 7.0},
	}
	outcome := mergeReviews(feedback, config.ReviewConfig{})
	assert.False(t, outcome.Approved)
	assert.Equal(t, workflow.DecisionRetry, outcome.Decision)
}

func TestMergeReviews_SingleAgentFallbackDisallowed(t *testing.T) {
	feedback := map[string]workflow.Feedback{"cursor": {Approved: true, Score: 9.0}}
	outcome := mergeReviews(feedback, config.ReviewConfig{AllowSingleAgentApproval: false})
	assert.Equal(t, workflow.DecisionEscalate, outcome.Decision)
	assert.Equal(t, "single-agent approval not allowed", outcome.FallbackReason)
}

func TestMergeReviews_SingleAgentFallbackAppliesPenalty(t *testing.T) {
	feedback := map[string]workflow.Feedback{"gemini": {Approved: true, Score: 9.0}}
	cfg := config.ReviewConfig{AllowSingleAgentApproval: true, SingleAgentScorePenalty: 1.0, SingleAgentMinimumScore: 5.0}
	outcome := mergeReviews(feedback, cfg)
	assert.True(t, outcome.UsedFallback)
	assert.True(t, outcome.Approved)
	assert.Equal(t, 8.0, outcome.Feedback.Score)
}

func TestMergeReviews_SingleAgentPreferenceWinsWhenBothAbsentIsPresent(t *testing.T) {
	feedback := map[string]workflow.Feedback{
		"cursor": {Approved: true, Score: 9.0},
		"gemini": {Approved: true, Score: 6.0},
	}
	// both present is the two-agent path, not single-agent fallback; use a
	// feedback map with only one reviewer reporting to exercise preference.
	solo := map[string]workflow.Feedback{"gemini": feedback["gemini"]}
	cfg := config.ReviewConfig{AllowSingleAgentApproval: true, SingleAgentPreference: "gemini", SingleAgentMinimumScore: 5.0}
	outcome := mergeReviews(solo, cfg)
	assert.True(t, outcome.UsedFallback)
	assert.Contains(t, outcome.FallbackReason, "gemini")
}

func TestMergeReviews_SingleAgentPreferenceIgnoredWhenThatAgentAbsent(t *testing.T) {
	feedback := map[string]workflow.Feedback{"cursor": {Approved: true, Score: 9.0}}
	cfg := config.ReviewConfig{AllowSingleAgentApproval: true, SingleAgentPreference: "gemini", SingleAgentMinimumScore: 5.0}
	outcome := mergeReviews(feedback, cfg)
	assert.True(t, outcome.UsedFallback)
	assert.Contains(t, outcome.FallbackReason, "cursor")
}

func TestMergeReviews_NoReviewerSucceededEscalates(t *testing.T) {
	outcome := mergeReviews(map[string]workflow.Feedback{}, config.ReviewConfig{AllowSingleAgentApproval: true})
	assert.Equal(t, workflow.DecisionEscalate, outcome.Decision)
	assert.Equal(t, "no reviewer succeeded", outcome.FallbackReason)
}
