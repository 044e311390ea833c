package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nbakr/marko/internal/config"
	"github.com/nbakr/marko/internal/llm"
)

// maxToolRounds bounds the tool-use loop so a model that keeps requesting
// lookups cannot spin forever.
const maxToolRounds = 5

// ErrTimeout is returned when an agent call exceeds the configured request
// timeout after all infrastructure retries.
var ErrTimeout = errors.New("agent request timed out")

// ToolHandler executes a tool call requested by the model and returns the
// result content to feed back.
type ToolHandler func(ctx context.Context, call llm.ToolCall) (string, error)

// Invoker runs agent completions with per-role settings, a bounded tool
// loop, a request timeout, and retries for transient failures.
type Invoker struct {
	provider   llm.Provider
	cfg        *config.Config
	tools      []llm.ToolDefinition
	handler    ToolHandler
	timeout    time.Duration
	maxRetries int
}

// NewInvoker creates an invoker. Tools and handler may be nil for roles
// that never look anything up.
func NewInvoker(provider llm.Provider, cfg *config.Config, tools []llm.ToolDefinition, handler ToolHandler) *Invoker {
	return &Invoker{
		provider:   provider,
		cfg:        cfg,
		tools:      tools,
		handler:    handler,
		timeout:    time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second,
		maxRetries: cfg.Pipeline.MaxInfraRetries,
	}
}

// Invoke runs a completion for the given role, resolving its settings and
// driving the tool loop until the model produces a final text answer.
func (i *Invoker) Invoke(ctx context.Context, role Role, system string, messages []llm.Message, jsonMode bool) (string, error) {
	settings := Resolve(i.cfg, role)

	convo := make([]llm.Message, 0, len(messages)+1)
	convo = append(convo, llm.Message{Role: llm.RoleSystem, Content: system})
	convo = append(convo, messages...)

	for round := 0; round <= maxToolRounds; round++ {
		resp, err := i.completeWithRetry(ctx, llm.CompletionRequest{
			Model:       settings.Model,
			Messages:    convo,
			MaxTokens:   4096,
			Temperature: settings.Temperature,
			JSONMode:    jsonMode,
			Tools:       i.tools,
		})
		if err != nil {
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}
		if i.handler == nil {
			return "", fmt.Errorf("%s agent requested tools but none are wired", role)
		}

		convo = append(convo, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result, err := i.handler(ctx, call)
			if err != nil {
				log.Printf("agents: tool %s failed: %v", call.Name, err)
				result = fmt.Sprintf(`{"error": %q}`, err.Error())
			}
			convo = append(convo, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("%s agent exceeded %d tool rounds", role, maxToolRounds)
}

// InvokeJSON runs a JSON-mode completion and unmarshals the result.
func (i *Invoker) InvokeJSON(ctx context.Context, role Role, system string, messages []llm.Message, out any) error {
	content, err := i.Invoke(ctx, role, system, messages, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("parsing %s agent response: %w", role, err)
	}
	return nil
}

// completeWithRetry applies the request timeout to each attempt and retries
// transient failures. A deadline exceeded after the last retry surfaces as
// ErrTimeout; cancellation of the parent context is never retried.
func (i *Invoker) completeWithRetry(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= i.maxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("agents: retrying request (attempt %d of %d): %v", attempt+1, i.maxRetries+1, lastErr)
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if i.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, i.timeout)
		}
		resp, err := i.provider.Complete(attemptCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, lastErr)
	}
	return nil, lastErr
}
