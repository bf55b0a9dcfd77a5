package agent

import (
	"context"
	"time"

	"github.com/anthropics/agent-orchestrator/graph/model"
)

// LLMAgent is the API-mode alternative to SubprocessAgent: it invokes a
// hosted LLM directly through the teacher's graph/model.ChatModel adapters
// (anthropic, openai, google) instead of shelling out to a CLI binary.
// No config key selects it and app.Build registers only SubprocessAgent, so
// it is used only where a caller constructs it directly. It gives the
// anthropic-sdk-go/openai-go/generative-ai-go dependencies that ChatModel
// wraps a concrete home in a system that otherwise treats agents as opaque
// subprocesses.
type LLMAgent struct {
	// Models maps an agent kind ("claude", "cursor", "gemini") to the
	// ChatModel that backs it in API mode.
	Models map[string]model.ChatModel

	// SystemPrompt is prepended as a system message on every call.
	SystemPrompt string
}

// Invoke sends req.Prompt as a single user message to the ChatModel
// registered for req.Kind and adapts the response into InvokeResult.
func (a *LLMAgent) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	cm, ok := a.Models[req.Kind]
	if !ok {
		return InvokeResult{}, errUnknownAgentKind(req.Kind)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	messages := make([]model.Message, 0, 2)
	if a.SystemPrompt != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: a.SystemPrompt})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: req.Prompt})

	start := time.Now()
	out, err := cm.Chat(runCtx, messages, nil)
	duration := time.Since(start)

	if err != nil {
		result := InvokeResult{Duration: duration}
		if runCtx.Err() == context.DeadlineExceeded {
			result.Error = ErrorTimeout
		} else {
			result.Error = ErrorCrashed
			result.Stderr = err.Error()
		}
		return result, nil
	}

	return InvokeResult{
		Success:  true,
		Stdout:   out.Text,
		Duration: duration,
	}, nil
}

type unknownAgentKindError string

func (e unknownAgentKindError) Error() string {
	return "agent: no API-mode model registered for kind " + string(e)
}

func errUnknownAgentKind(kind string) error {
	return unknownAgentKindError(kind)
}
