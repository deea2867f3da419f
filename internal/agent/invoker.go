package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agentif/agentif/pkg/models"
)

// DefaultToolConcurrency bounds parallel tool executions per agent.
const DefaultToolConcurrency = 8

// Invoker runs tool calls. Executions are concurrent up to a semaphore
// bound; each invocation emits ToolExecutionStart/End and always produces a
// ToolResultMessage, folding parse failures and tool errors into error
// results.
type Invoker struct {
	registry *Registry
	sem      chan struct{}
	logger   *slog.Logger
}

// NewInvoker builds an invoker over the registry. concurrency <= 0 uses
// DefaultToolConcurrency; a nil logger falls back to slog.Default().
func NewInvoker(registry *Registry, concurrency int, logger *slog.Logger) *Invoker {
	if concurrency <= 0 {
		concurrency = DefaultToolConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		registry: registry,
		sem:      make(chan struct{}, concurrency),
		logger:   logger,
	}
}

// Dispatch starts the call in its own goroutine and returns a future holding
// the result. The future channel is buffered, so abandoning it on abort
// never leaks the goroutine.
func (inv *Invoker) Dispatch(ctx context.Context, emitter *Emitter, call models.ToolCall) <-chan *models.ToolResultMessage {
	future := make(chan *models.ToolResultMessage, 1)
	go func() {
		future <- inv.Invoke(ctx, emitter, call)
	}()
	return future
}

// Invoke runs one tool call synchronously.
func (inv *Invoker) Invoke(ctx context.Context, emitter *Emitter, call models.ToolCall) *models.ToolResultMessage {
	select {
	case inv.sem <- struct{}{}:
		defer func() { <-inv.sem }()
	case <-ctx.Done():
		return models.NewToolResultMessage(call.ID, call.Name, fmt.Sprintf("Tool execution cancelled: %v", ctx.Err()), true)
	}

	emitter.ToolExecutionStart(call)
	started := time.Now()
	result := inv.run(ctx, call)
	durationMS := time.Since(started).Milliseconds()
	emitter.ToolExecutionEnd(call, result, durationMS)

	inv.logger.Debug("tool executed",
		"tool", call.Name, "call_id", call.ID,
		"is_error", result.IsError, "duration_ms", durationMS)
	return result
}

func (inv *Invoker) run(ctx context.Context, call models.ToolCall) (result *models.ToolResultMessage) {
	defer func() {
		if r := recover(); r != nil {
			result = models.NewToolResultMessage(call.ID, call.Name, fmt.Sprintf("Tool panicked: %v", r), true)
		}
	}()

	tool, ok := inv.registry.Get(call.Name)
	if !ok {
		return models.NewToolResultMessage(call.ID, call.Name, fmt.Sprintf("Tool not found: %s", call.Name), true)
	}

	args, err := ParseArguments(tool, call.Arguments)
	if err != nil {
		return models.NewToolResultMessage(call.ID, call.Name, FormatArgParseError(err, call.Arguments), true)
	}

	output, err := tool.Fn(ctx, args)
	if err != nil {
		return models.NewToolResultMessage(call.ID, call.Name, err.Error(), true)
	}
	return models.NewToolResultMessage(call.ID, call.Name, output, false)
}
